package admin

import (
	"net/http"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

// poolStats summarizes one pool's endpoint health for the dashboard (§4.7).
type poolStats struct {
	Pool             types.PoolTag `json:"pool"`
	VirtualModel     string        `json:"virtual_model"`
	EndpointCount    int           `json:"endpoint_count"`
	AvailableCount   int           `json:"available_count"`
	CoolingCount     int           `json:"cooling_count"`
	TotalRequests    int64         `json:"total_requests"`
	SuccessRequests  int64         `json:"success_requests"`
	ErrorRequests    int64         `json:"error_requests"`
}

type statsResponse struct {
	Pools     []poolStats     `json:"pools"`
	Providers []types.Provider `json:"providers"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	pools := h.reg.ListPoolConfigs()
	out := make([]poolStats, 0, len(pools))

	for _, cfg := range pools {
		endpoints := h.reg.ListEndpoints(cfg.Pool)
		ps := poolStats{Pool: cfg.Pool, VirtualModel: cfg.VirtualModel, EndpointCount: len(endpoints)}
		for _, e := range endpoints {
			ps.TotalRequests += e.Total
			ps.SuccessRequests += e.Success
			ps.ErrorRequests += e.Error
			if !e.Enabled {
				continue
			}
			if h.health.IsAvailable(e.ID, now, false) {
				ps.AvailableCount++
			} else {
				ps.CoolingCount++
			}
		}
		out = append(out, ps)
	}

	writeJSON(w, http.StatusOK, statsResponse{Pools: out, Providers: h.reg.ListProviders()})
}
