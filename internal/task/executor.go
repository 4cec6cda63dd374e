package task

import (
	"context"
	"fmt"

	"github.com/helmsman-ai/helmsman/internal/routing"
)

// RoutedExecutor executes queued tasks by routing them to a model and
// dispatching to the matching provider backend. Tasks with an explicit
// model id skip routing.
type RoutedExecutor struct {
	router     *routing.Router
	classifier Classifier
	backends   map[routing.Provider]Backend
	outcomes   OutcomeRecorder
}

// NewRoutedExecutor creates a RoutedExecutor. outcomes may be nil.
func NewRoutedExecutor(router *routing.Router, classifier Classifier, backends map[routing.Provider]Backend, outcomes OutcomeRecorder) *RoutedExecutor {
	return &RoutedExecutor{
		router:     router,
		classifier: classifier,
		backends:   backends,
		outcomes:   outcomes,
	}
}

// Execute resolves the task to a model and provider, then generates.
func (e *RoutedExecutor) Execute(ctx context.Context, t Task) (string, error) {
	modelID := t.ModelID
	provider := routing.ProviderCloud
	if t.Lane == LaneLocal {
		provider = routing.ProviderLocal
	}

	if modelID == "" {
		intent := t.Intent
		if !intent.Valid() && e.classifier != nil {
			intent = e.classifier.Classify(ctx, t.Prompt)
		}
		decision, err := e.router.Select(t.ID, intent, routing.Constraints{RequireLocal: t.Lane == LaneLocal})
		if err != nil {
			return "", err
		}
		modelID = decision.Model.ID
		provider = decision.Model.Provider
	}

	backend, ok := e.backends[provider]
	if !ok {
		return "", &BackendExecutionError{Model: modelID, Err: fmt.Errorf("no adapter for provider %q", provider)}
	}

	output, err := backend.Generate(ctx, modelID, t.Prompt, t.SystemPrompt)
	if err != nil {
		err = &BackendExecutionError{Model: modelID, Err: err}
		if e.outcomes != nil {
			e.outcomes.RecordOutcome(modelID, false)
		}
		return "", err
	}
	if e.outcomes != nil {
		e.outcomes.RecordOutcome(modelID, true)
	}
	return output, nil
}
