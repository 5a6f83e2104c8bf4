package middleware

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the OpenAI-compatible error envelope every client-facing
// failure is rendered as, matching the teacher's pkg/proxy/types error
// shape.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WriteError writes an OpenAI-compatible error body with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorDetail{Message: message, Type: errorType(status)}})
}

func errorType(status int) string {
	switch {
	case status == 400:
		return "invalid_request_error"
	case status == 401 || status == 403:
		return "authentication_error"
	case status == 404:
		return "not_found"
	case status == 429:
		return "rate_limit_exceeded"
	case status == 503:
		return "service_unavailable"
	case status == 504:
		return "gateway_timeout"
	default:
		return "server_error"
	}
}
