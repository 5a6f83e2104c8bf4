package admin

import (
	"encoding/json"
	"net/http"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

func (h *Handler) listPools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.ListPoolConfigs())
}

type poolConfigRequest struct {
	VirtualModel    string `json:"virtual_model"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	MaxRetries      int    `json:"max_retries"`
}

func (h *Handler) updatePoolConfig(w http.ResponseWriter, r *http.Request) {
	tag := types.PoolTag(r.PathValue("tag"))
	if !validPool(tag) {
		badRequest(w, "pool must be one of tool, normal, advanced")
		return
	}

	var req poolConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.VirtualModel == "" {
		badRequest(w, "virtual_model is required")
		return
	}
	if req.CooldownSeconds <= 0 || req.TimeoutSeconds <= 0 {
		badRequest(w, "cooldown_seconds and timeout_seconds must be positive")
		return
	}

	cfg := types.PoolConfig{
		Pool:            tag,
		VirtualModel:    req.VirtualModel,
		CooldownSeconds: req.CooldownSeconds,
		TimeoutSeconds:  req.TimeoutSeconds,
		MaxRetries:      req.MaxRetries,
	}
	if err := h.reg.UpdatePoolConfig(r.Context(), cfg); err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
