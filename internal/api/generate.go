package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/helmsman-ai/helmsman/internal/routing"
	"github.com/helmsman-ai/helmsman/internal/task"
)

// GenerateRequest is a direct, awaited generation call.
type GenerateRequest struct {
	Prompt        string `json:"prompt"`
	SystemPrompt  string `json:"system_prompt,omitempty"`
	Intent        string `json:"intent,omitempty"`
	RequireLocal  bool   `json:"require_local,omitempty"`
	PreferFast    bool   `json:"prefer_fast,omitempty"`
	PreferQuality bool   `json:"prefer_quality,omitempty"`
}

// GenerateResponse carries the settled result of a direct call.
type GenerateResponse struct {
	TaskID string `json:"task_id"`
	Model  string `json:"model"`
	Output string `json:"output"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Prompt == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}

		id, ch, err := deps.Orchestrator.Execute(r.Context(), req.Prompt, task.ExecuteOptions{
			SystemPrompt: req.SystemPrompt,
			Intent:       routing.Intent(req.Intent),
			Constraints: routing.Constraints{
				RequireLocal:  req.RequireLocal,
				PreferFast:    req.PreferFast,
				PreferQuality: req.PreferQuality,
			},
		})
		if errors.Is(err, routing.ErrNoModelAvailable) {
			httpError(w, http.StatusServiceUnavailable, "no_model_available", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "execute failed: %v", err)
			return
		}

		res := <-ch
		if res.Err != nil {
			status := http.StatusBadGateway
			if errors.Is(res.Err, task.ErrTimeout) {
				status = http.StatusGatewayTimeout
			}
			httpError(w, status, "execution_error", "task %s: %v", id, res.Err)
			return
		}

		writeJSON(w, http.StatusOK, GenerateResponse{TaskID: id, Model: res.Model, Output: res.Output})
	}
}

// EnqueueRequest adds a task to the queue without awaiting its result.
type EnqueueRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Intent       string `json:"intent,omitempty"`
	ModelID      string `json:"model_id,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	IsLocal      bool   `json:"is_local"`
}

func handleEnqueue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req EnqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Prompt == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}

		lane := task.LaneCloud
		if req.IsLocal {
			lane = task.LaneLocal
		}
		id := deps.Queue.Enqueue(task.Task{
			Prompt:       req.Prompt,
			SystemPrompt: req.SystemPrompt,
			Intent:       routing.Intent(req.Intent),
			ModelID:      req.ModelID,
			Priority:     req.Priority,
			Lane:         lane,
		})

		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
	}
}

func handleQueueSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Queue.Snapshot())
	}
}

func handleQueueClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Queue.ClearCompleted()
		writeJSON(w, http.StatusOK, deps.Queue.Snapshot())
	}
}

func handleRoutingHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history := deps.Router.History()
		if history == nil {
			history = []routing.Decision{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}
