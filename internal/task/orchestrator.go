package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helmsman-ai/helmsman/internal/events"
	"github.com/helmsman-ai/helmsman/internal/routing"
)

// Backend generates text against one provider class of models.
type Backend interface {
	Generate(ctx context.Context, modelID, prompt, systemPrompt string) (string, error)
}

// Classifier maps a prompt to a task intent.
type Classifier interface {
	Classify(ctx context.Context, text string) routing.Intent
}

// OutcomeRecorder receives execution outcomes for success-rate tracking.
type OutcomeRecorder interface {
	RecordOutcome(modelID string, success bool)
}

// Result is the settled outcome of a direct execution.
type Result struct {
	TaskID string
	Model  string
	Output string
	Err    error
}

// ExecuteOptions tune a direct execution call.
type ExecuteOptions struct {
	SystemPrompt string
	// Intent skips classification when set.
	Intent      routing.Intent
	Constraints routing.Constraints
}

// Orchestrator converts an execution request into an awaitable outcome.
// Each call is settled at most once: whichever of success, failure, or
// timeout happens first wins, and the rest are discarded.
type Orchestrator struct {
	router     *routing.Router
	classifier Classifier
	backends   map[routing.Provider]Backend
	outcomes   OutcomeRecorder
	timeout    time.Duration
	bus        *events.Bus
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]chan Result
}

// NewOrchestrator creates an Orchestrator. outcomes may be nil.
func NewOrchestrator(
	router *routing.Router,
	classifier Classifier,
	backends map[routing.Provider]Backend,
	outcomes OutcomeRecorder,
	timeout time.Duration,
	bus *events.Bus,
) *Orchestrator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Orchestrator{
		router:     router,
		classifier: classifier,
		backends:   backends,
		outcomes:   outcomes,
		timeout:    timeout,
		bus:        bus,
		logger:     slog.Default(),
		pending:    make(map[string]chan Result),
	}
}

// Execute routes and dispatches the prompt, returning the task id and a
// one-shot channel that receives the settled Result. Routing failures are
// returned synchronously; no task is created for them.
func (o *Orchestrator) Execute(ctx context.Context, prompt string, opts ExecuteOptions) (string, <-chan Result, error) {
	intent := opts.Intent
	if !intent.Valid() {
		intent = o.classifier.Classify(ctx, prompt)
	}

	id := uuid.New().String()
	decision, err := o.router.Select(id, intent, opts.Constraints)
	if err != nil {
		return "", nil, err
	}

	ch := make(chan Result, 1)
	o.mu.Lock()
	o.pending[id] = ch
	o.mu.Unlock()

	timer := time.AfterFunc(o.timeout, func() {
		if o.settle(Result{TaskID: id, Model: decision.Model.ID, Err: ErrTimeout}) {
			o.publishTask(events.TypeTaskFailed, events.TaskEvent{TaskID: id, Model: decision.Model.ID, Error: ErrTimeout.Error()})
			o.logger.Warn("execution timed out", "task_id", id, "model", decision.Model.ID)
		}
	})

	go o.dispatch(ctx, id, prompt, opts.SystemPrompt, decision, timer)

	return id, ch, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, id, prompt, systemPrompt string, decision routing.Decision, timer *time.Timer) {
	model := decision.Model
	o.publishTask(events.TypeTaskStarted, events.TaskEvent{TaskID: id, Model: model.ID})

	backend, ok := o.backends[model.Provider]
	if !ok {
		err := &BackendExecutionError{Model: model.ID, Err: fmt.Errorf("no adapter for provider %q", model.Provider)}
		o.finish(id, Result{TaskID: id, Model: model.ID, Err: err}, timer)
		return
	}

	output, err := backend.Generate(ctx, model.ID, prompt, systemPrompt)
	if err != nil {
		err = &BackendExecutionError{Model: model.ID, Err: err}
		o.finish(id, Result{TaskID: id, Model: model.ID, Err: err}, timer)
		return
	}
	o.finish(id, Result{TaskID: id, Model: model.ID, Output: output}, timer)
}

// finish settles the call if it is still pending. A late completion or
// failure after the timeout fired finds no correlation entry and is
// silently dropped.
func (o *Orchestrator) finish(id string, res Result, timer *time.Timer) {
	if !o.settle(res) {
		o.logger.Debug("dropping late settlement", "task_id", id)
		return
	}
	timer.Stop()

	if res.Err != nil {
		o.publishTask(events.TypeTaskFailed, events.TaskEvent{TaskID: id, Model: res.Model, Error: res.Err.Error()})
	} else {
		o.publishTask(events.TypeTaskCompleted, events.TaskEvent{TaskID: id, Model: res.Model, Output: res.Output})
	}
	if o.outcomes != nil {
		o.outcomes.RecordOutcome(res.Model, res.Err == nil)
	}
}

// settle delivers the result to the caller exactly once. The correlation
// map entry is removed on first settlement.
func (o *Orchestrator) settle(res Result) bool {
	o.mu.Lock()
	ch, ok := o.pending[res.TaskID]
	if ok {
		delete(o.pending, res.TaskID)
	}
	o.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	close(ch)
	return true
}

func (o *Orchestrator) publishTask(typ events.Type, e events.TaskEvent) {
	if o.bus != nil {
		o.bus.Publish(typ, e)
	}
}
