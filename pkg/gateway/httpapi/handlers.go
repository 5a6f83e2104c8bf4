package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	gwerrors "github.com/xiongxionghk/api-pool-gateway/pkg/gateway/errors"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/middleware"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/registry"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/logging"
)

// Dispatcher is the subset of *dispatch.Dispatcher the client handlers
// depend on, kept as an interface so handler tests can fake it.
type Dispatcher interface {
	Dispatch(ctx context.Context, requestModel string, requestBody []byte, clientFormat types.WireFormat, w http.ResponseWriter, flusher http.Flusher) error
}

// Handler serves the client-facing chat endpoints (§6).
type Handler struct {
	dispatcher Dispatcher
	reg        *registry.Registry
	logger     *logging.Logger
}

// New creates a client-facing Handler.
func New(dispatcher Dispatcher, reg *registry.Registry, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dispatcher: dispatcher, reg: reg, logger: logger.With("component", "httpapi")}
}

// ChatCompletions serves POST /v1/chat/completions (OpenAI shape).
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, types.WireFormatOpenAI, r.Header.Get("Authorization"))
}

// Messages serves POST /v1/messages (Anthropic shape).
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("x-api-key")
	if auth == "" {
		auth = r.Header.Get("Authorization")
	}
	h.serve(w, r, types.WireFormatAnthropic, auth)
}

// serve implements the shared body of both client routes: check for any
// non-empty credential (§6: "not validated"), sniff the model field, and
// hand the raw body to the Dispatcher.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, format types.WireFormat, auth string) {
	if auth == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	if r.Method != http.MethodPost {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var probe struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Model == "" {
		middleware.WriteError(w, http.StatusBadRequest, "request body must include a model")
		return
	}

	flusher, _ := w.(http.Flusher)
	if err := h.dispatcher.Dispatch(r.Context(), probe.Model, body, format, w, flusher); err != nil {
		logCtx := logging.WithModel(logging.WithRequestID(r.Context(), middleware.GetRequestID(r.Context())), probe.Model)
		h.logger.WarnContext(logCtx, "dispatch failed", "error", err)
		middleware.WriteError(w, gwerrors.StatusCode(err), err.Error())
	}
}

// Models serves GET /v1/models, listing the three configured virtual
// models in the OpenAI list shape.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	pools := h.reg.ListPoolConfigs()
	data := make([]modelEntry, 0, len(pools))
	for _, p := range pools {
		data = append(data, modelEntry{
			ID:      p.VirtualModel,
			Object:  "model",
			OwnedBy: "mercator-gateway",
			Created: modelsEpoch,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(modelsResponse{Object: "list", Data: data})
}

// modelsEpoch is a fixed placeholder creation timestamp: the gateway has no
// per-model creation time to report, and the OpenAI list shape requires the
// field to be present.
const modelsEpoch = 1700000000

type modelsResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}
