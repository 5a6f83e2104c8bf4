package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.ListProviders())
}

type providerRequest struct {
	Name    string           `json:"name"`
	BaseURL string           `json:"base_url"`
	APIKey  string           `json:"api_key"`
	Format  types.WireFormat `json:"format"`
	Enabled bool             `json:"enabled"`
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Name == "" || req.BaseURL == "" {
		badRequest(w, "name and base_url are required")
		return
	}
	if req.Format != types.WireFormatOpenAI && req.Format != types.WireFormatAnthropic {
		badRequest(w, "format must be \"openai\" or \"anthropic\"")
		return
	}

	p := types.Provider{
		Name:    req.Name,
		BaseURL: req.BaseURL,
		APIKey:  req.APIKey,
		Format:  req.Format,
		Enabled: req.Enabled,
	}
	created, err := h.reg.CreateProvider(r.Context(), p)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateProvider(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid provider id")
		return
	}
	existing, ok := h.reg.GetProvider(id)
	if !ok {
		notFound(w, "provider not found")
		return
	}

	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	existing.Name = req.Name
	existing.BaseURL = req.BaseURL
	if req.APIKey != "" {
		existing.APIKey = req.APIKey
	}
	existing.Format = req.Format
	existing.Enabled = req.Enabled

	if err := h.reg.UpdateProvider(r.Context(), existing); err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (h *Handler) deleteProvider(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid provider id")
		return
	}
	for _, e := range h.reg.ListEndpoints("") {
		if e.ProviderID == id {
			h.health.Untrack(e.ID)
		}
	}
	if err := h.reg.DeleteProvider(r.Context(), id); err != nil {
		notFound(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fetchModels probes the upstream model catalogue for a provider (§4.7).
func (h *Handler) fetchModels(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid provider id")
		return
	}
	provider, ok := h.reg.GetProvider(id)
	if !ok {
		notFound(w, "provider not found")
		return
	}

	body, err := h.upstream.FetchModels(r.Context(), provider)
	if err != nil {
		h.logger.Warn("fetch-models failed", "provider", provider.Name, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
