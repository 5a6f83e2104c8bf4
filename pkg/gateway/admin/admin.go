// Package admin implements the Admin API (§4.7): thin CRUD over the
// Registry and Endpoint State, plus the upstream model-list probe, stats
// aggregation and log paging/clear.
//
// Grounded on the teacher's pkg/proxy/handlers/chat.go handler-wrapper
// shape (struct holding its collaborators, one method per route, slog
// instrumentation) generalised from one route to a full CRUD surface.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/healthstate"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/logsink"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/middleware"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/registry"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/upstream"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/logging"
)

// Handler serves the /admin/* surface.
type Handler struct {
	reg      *registry.Registry
	health   *healthstate.State
	logs     *logsink.Sink
	upstream *upstream.Pool
	logger   *logging.Logger
}

// New creates an admin Handler.
func New(reg *registry.Registry, health *healthstate.State, logs *logsink.Sink, up *upstream.Pool, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reg: reg, health: health, logs: logs, upstream: up, logger: logger.With("component", "admin")}
}

// Routes registers every admin route onto mux, wrapped by password auth.
// password is the ADMIN_PASSWORD value checked by RequirePassword.
func (h *Handler) Routes(mux *http.ServeMux, password string) {
	auth := RequirePassword(password)

	mux.Handle("GET /admin/providers", auth(http.HandlerFunc(h.listProviders)))
	mux.Handle("POST /admin/providers", auth(http.HandlerFunc(h.createProvider)))
	mux.Handle("PUT /admin/providers/{id}", auth(http.HandlerFunc(h.updateProvider)))
	mux.Handle("DELETE /admin/providers/{id}", auth(http.HandlerFunc(h.deleteProvider)))
	mux.Handle("POST /admin/providers/{id}/fetch-models", auth(http.HandlerFunc(h.fetchModels)))

	mux.Handle("GET /admin/endpoints", auth(http.HandlerFunc(h.listEndpoints)))
	mux.Handle("POST /admin/endpoints", auth(http.HandlerFunc(h.createEndpoint)))
	mux.Handle("POST /admin/endpoints/batch", auth(http.HandlerFunc(h.createEndpointsBatch)))
	mux.Handle("PUT /admin/endpoints/{id}", auth(http.HandlerFunc(h.updateEndpoint)))
	mux.Handle("DELETE /admin/endpoints/{id}", auth(http.HandlerFunc(h.deleteEndpoint)))

	mux.Handle("GET /admin/pools", auth(http.HandlerFunc(h.listPools)))
	mux.Handle("PUT /admin/pools/{tag}/config", auth(http.HandlerFunc(h.updatePoolConfig)))

	mux.Handle("GET /admin/stats", auth(http.HandlerFunc(h.stats)))
	mux.Handle("GET /admin/logs", auth(http.HandlerFunc(h.listLogs)))
	mux.Handle("DELETE /admin/logs", auth(http.HandlerFunc(h.clearLogs)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	middleware.WriteError(w, http.StatusBadRequest, msg)
}

func notFound(w http.ResponseWriter, msg string) {
	middleware.WriteError(w, http.StatusNotFound, msg)
}

func internalError(w http.ResponseWriter, err error) {
	middleware.WriteError(w, http.StatusInternalServerError, err.Error())
}
