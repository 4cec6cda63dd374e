// Package api exposes the daemon's management surface: a bearer-token HTTP
// API and an MCP server over stdio.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helmsman-ai/helmsman/internal/docstore"
	"github.com/helmsman-ai/helmsman/internal/events"
	"github.com/helmsman-ai/helmsman/internal/ingest"
	"github.com/helmsman-ai/helmsman/internal/registry"
	"github.com/helmsman-ai/helmsman/internal/rerank"
	"github.com/helmsman-ai/helmsman/internal/routing"
	"github.com/helmsman-ai/helmsman/internal/task"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Embedder computes a query embedding for search requests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Orchestrator *task.Orchestrator
	Queue        *task.Queue
	Router       *routing.Router
	Registry     *registry.Registry
	Repo         *docstore.Repository
	Pipeline     *ingest.Pipeline
	Backlog      *ingest.Backlog
	Embedder     Embedder
	Reranker     rerank.Reranker // optional; nil skips re-scoring of search hits
	Bus          *events.Bus
	Token        string
	UploadDir    string
	Metrics      http.Handler // optional; mounted at /metrics when set
}

// NewHandler assembles the full HTTP surface. /health and /metrics are
// unauthenticated; everything under /v1 requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/generate", handleGenerate(deps))

		r.Post("/queue/tasks", handleEnqueue(deps))
		r.Get("/queue", handleQueueSnapshot(deps))
		r.Post("/queue/clear", handleQueueClear(deps))

		r.Get("/routing/history", handleRoutingHistory(deps))

		r.Post("/documents", handleIngestDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Post("/documents/search", handleSearch(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))

		r.Get("/models", handleListModels(deps))
		r.Post("/models", handleRegisterModel(deps))
		r.Patch("/models/{id}", handlePatchModel(deps))
		r.Delete("/models/{id}", handleDeleteModel(deps))

		r.Get("/events", handleEvents(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
