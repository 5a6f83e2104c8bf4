package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

func (h *Handler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	pool := types.PoolTag(r.URL.Query().Get("pool"))
	writeJSON(w, http.StatusOK, h.reg.ListEndpoints(pool))
}

type endpointRequest struct {
	ProviderID      int64        `json:"provider_id"`
	UpstreamModelID string       `json:"upstream_model_id"`
	Pool            types.PoolTag `json:"pool"`
	Enabled         bool         `json:"enabled"`
	Weight          int          `json:"weight"`
	MinIntervalSecs int          `json:"min_interval_seconds"`
	Priority        int          `json:"priority"`
}

func (req endpointRequest) toEndpoint() types.Endpoint {
	weight := req.Weight
	if weight <= 0 {
		weight = 1
	}
	return types.Endpoint{
		ProviderID:      req.ProviderID,
		UpstreamModelID: req.UpstreamModelID,
		Pool:            req.Pool,
		Enabled:         req.Enabled,
		Weight:          weight,
		MinIntervalSecs: req.MinIntervalSecs,
		Priority:        req.Priority,
	}
}

func validPool(tag types.PoolTag) bool {
	for _, p := range types.AllPools {
		if p == tag {
			return true
		}
	}
	return false
}

func (h *Handler) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !validPool(req.Pool) {
		badRequest(w, "pool must be one of tool, normal, advanced")
		return
	}
	if _, ok := h.reg.GetProvider(req.ProviderID); !ok {
		badRequest(w, "unknown provider_id")
		return
	}

	created, err := h.reg.CreateEndpoint(r.Context(), req.toEndpoint())
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	h.health.Track(created)
	writeJSON(w, http.StatusCreated, created)
}

// createEndpointsBatch lets the admin register many endpoints for a single
// provider in one round trip, the common case after a fetch-models probe.
func (h *Handler) createEndpointsBatch(w http.ResponseWriter, r *http.Request) {
	var req []endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	created := make([]types.Endpoint, 0, len(req))
	for _, item := range req {
		if !validPool(item.Pool) {
			badRequest(w, "pool must be one of tool, normal, advanced")
			return
		}
		if _, ok := h.reg.GetProvider(item.ProviderID); !ok {
			badRequest(w, "unknown provider_id")
			return
		}
		e, err := h.reg.CreateEndpoint(r.Context(), item.toEndpoint())
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		h.health.Track(e)
		created = append(created, e)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid endpoint id")
		return
	}
	existing, ok := h.reg.GetEndpoint(id)
	if !ok {
		notFound(w, "endpoint not found")
		return
	}

	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !validPool(req.Pool) {
		badRequest(w, "pool must be one of tool, normal, advanced")
		return
	}

	existing.UpstreamModelID = req.UpstreamModelID
	existing.Pool = req.Pool
	existing.Enabled = req.Enabled
	existing.Weight = req.Weight
	if existing.Weight <= 0 {
		existing.Weight = 1
	}
	existing.MinIntervalSecs = req.MinIntervalSecs
	existing.Priority = req.Priority

	if err := h.reg.UpdateEndpoint(r.Context(), existing); err != nil {
		badRequest(w, err.Error())
		return
	}
	h.health.Track(existing)
	writeJSON(w, http.StatusOK, existing)
}

func (h *Handler) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid endpoint id")
		return
	}
	if err := h.reg.DeleteEndpoint(r.Context(), id); err != nil {
		notFound(w, err.Error())
		return
	}
	h.health.Untrack(id)
	w.WriteHeader(http.StatusNoContent)
}
