package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helmsman-ai/helmsman/internal/docstore"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB

// IngestDocumentRequest submits a document for ingestion. Either Path (a
// file readable by the daemon) or Content (base64, written under the upload
// dir as Filename) must be set.
type IngestDocumentRequest struct {
	Title    string `json:"title"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content,omitempty"`
	Wait     bool   `json:"wait,omitempty"`
}

func handleIngestDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req IngestDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Path == "" && req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of path or content is required")
			return
		}

		sourcePath := req.Path
		if req.Content != "" {
			if req.Filename == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required with inline content")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			// The uploads directory does not exist on a fresh install.
			if err := os.MkdirAll(deps.UploadDir, 0o700); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to store upload: %v", err)
				return
			}
			sourcePath = filepath.Join(deps.UploadDir, uuid.New().String()+"_"+filepath.Base(req.Filename))
			if err := os.WriteFile(sourcePath, decoded, 0o600); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to store upload: %v", err)
				return
			}
		}

		title := req.Title
		if title == "" {
			title = filepath.Base(sourcePath)
		}
		doc := storage.Document{
			ID:    uuid.New().String(),
			Title: title,
			Path:  sourcePath,
		}

		start := time.Now()
		if req.Wait {
			if err := deps.Pipeline.IngestFile(r.Context(), sourcePath, doc, nil); err != nil {
				metrics.DocumentsIngested.WithLabelValues("failed").Inc()
				httpError(w, http.StatusInternalServerError, "ingestion_error", "%v", err)
				return
			}
			metrics.DocumentsIngested.WithLabelValues("ready").Inc()
			metrics.IngestDuration.Observe(time.Since(start).Seconds())
			writeJSON(w, http.StatusOK, map[string]string{"id": doc.ID, "status": "ready"})
			return
		}

		// Deliberately not the request context: background ingestion must
		// outlive the HTTP call that submitted it.
		done := deps.Backlog.Submit(context.Background(), sourcePath, doc, nil)
		go func() {
			if err := <-done; err != nil {
				metrics.DocumentsIngested.WithLabelValues("failed").Inc()
				return
			}
			metrics.DocumentsIngested.WithLabelValues("ready").Inc()
			metrics.IngestDuration.Observe(time.Since(start).Seconds())
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"id": doc.ID, "status": "queued"})
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		// Browse mode: nil query vector returns the most recent ready rows.
		results, err := deps.Repo.Search(r.Context(), nil, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if results == nil {
			results = []docstore.SearchResult{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// SearchRequest is a semantic search over the ingested corpus.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		limit := req.Limit
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		vector, err := deps.Embedder.Embed(r.Context(), req.Query)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "embedding query: %v", err)
			return
		}

		results, err := deps.Repo.Search(r.Context(), vector, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		if deps.Reranker != nil {
			reranked, err := deps.Reranker.Rerank(r.Context(), req.Query, results)
			if err != nil {
				slog.Warn("reranking failed, returning vector order", "error", err)
			} else {
				results = reranked
			}
		}
		if results == nil {
			results = []docstore.SearchResult{}
		}
		metrics.SearchResults.Observe(float64(len(results)))
		writeJSON(w, http.StatusOK, results)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Repo.DeleteDocument(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
