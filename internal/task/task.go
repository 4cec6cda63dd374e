// Package task holds the dual-lane execution queue and the orchestrator for
// direct awaitable calls. The two share routing and backend adapters but are
// otherwise independent paths: the queue is for caller-visible, inspectable,
// prioritized batches; the orchestrator is for ad-hoc calls that need a
// result now.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/helmsman-ai/helmsman/internal/routing"
)

// Status is a task's lifecycle state. Transitions are strictly
// pending -> running -> completed|failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Lane identifies which queue a task belongs to.
type Lane string

const (
	LaneLocal Lane = "local"
	LaneCloud Lane = "cloud"
)

// Task is one unit of queued generation work.
type Task struct {
	ID           string         `json:"id"`
	Prompt       string         `json:"prompt"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Intent       routing.Intent `json:"intent,omitempty"`
	ModelID      string         `json:"model_id,omitempty"`
	Priority     int            `json:"priority"`
	Lane         Lane           `json:"lane"`
	Status       Status         `json:"status"`
	Output       string         `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    time.Time      `json:"started_at,omitzero"`
	CompletedAt  time.Time      `json:"completed_at,omitzero"`
}

// ErrTimeout is returned when an execution exceeds its wall-clock budget.
// The timeout abandons waiting for the backend; it does not guarantee the
// backend call itself stops.
var ErrTimeout = errors.New("execution timed out")

// BackendExecutionError wraps a failure from a model execution adapter.
type BackendExecutionError struct {
	Model string
	Err   error
}

func (e *BackendExecutionError) Error() string {
	return fmt.Sprintf("backend execution on %s: %v", e.Model, e.Err)
}

func (e *BackendExecutionError) Unwrap() error {
	return e.Err
}
