package admin

import (
	"net/http"
	"strconv"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

type logsResponse struct {
	Entries []types.LogEntry `json:"entries"`
	Total   int64             `json:"total"`
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.LogFilter{
		Pool:     types.PoolTag(q.Get("pool")),
		Provider: q.Get("provider"),
		Offset:   parseIntDefault(q.Get("offset"), 0),
		Limit:    parseIntDefault(q.Get("limit"), 100),
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "success must be true or false")
			return
		}
		filter.Success = &b
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}

	entries, total, err := h.logs.Query(r.Context(), filter)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{Entries: entries, Total: total})
}

func (h *Handler) clearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.logs.Clear(r.Context()); err != nil {
		internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
