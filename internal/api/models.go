package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helmsman-ai/helmsman/internal/routing"
)

// RegisterModelRequest adds or replaces a model in the registry.
type RegisterModelRequest struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
	Provider     string   `json:"provider"`
	Enabled      *bool    `json:"enabled,omitempty"`
	Priority     int      `json:"priority,omitempty"`
	Position     int      `json:"position,omitempty"`
}

func handleListModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := deps.Registry.Models()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list models: %v", err)
			return
		}
		if models == nil {
			models = []routing.Model{}
		}
		writeJSON(w, http.StatusOK, models)
	}
}

func handleRegisterModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req RegisterModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		caps := make([]routing.Capability, len(req.Capabilities))
		for i, c := range req.Capabilities {
			caps[i] = routing.Capability(c)
		}
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}

		m := routing.Model{
			ID:           req.ID,
			Capabilities: caps,
			Provider:     routing.Provider(req.Provider),
			Enabled:      enabled,
			Priority:     req.Priority,
			SuccessRate:  1,
		}
		if err := deps.Registry.Register(m, req.Position); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

// PatchModelRequest toggles a model's enablement.
type PatchModelRequest struct {
	Enabled *bool `json:"enabled"`
}

func handlePatchModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req PatchModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Enabled == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "enabled is required")
			return
		}

		if err := deps.Registry.SetEnabled(id, *req.Enabled); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update model: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": *req.Enabled})
	}
}

func handleDeleteModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Registry.Remove(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete model: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
