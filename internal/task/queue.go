package task

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helmsman-ai/helmsman/internal/events"
)

// Executor runs a queued task against its target model.
type Executor interface {
	Execute(ctx context.Context, t Task) (string, error)
}

// Snapshot is the full queue state published to observers on every mutation.
type Snapshot struct {
	Local          []Task `json:"local"`
	Cloud          []Task `json:"cloud"`
	IsLocalRunning bool   `json:"is_local_running"`
}

// Queue holds two ordered lanes of pending work. The local lane is strictly
// serial: at most one task runs at a time, and a drain already in progress
// makes further drain requests no-ops. The cloud lane is a priority-ordered
// holding area; execution concurrency there is the caller's concern.
type Queue struct {
	exec    Executor
	timeout time.Duration
	bus     *events.Bus
	logger  *slog.Logger

	mu           sync.Mutex
	local        []*Task
	cloud        []*Task
	localRunning bool
}

// NewQueue creates a Queue draining local tasks through exec, each bounded
// by the given wall-clock timeout.
func NewQueue(exec Executor, timeout time.Duration, bus *events.Bus) *Queue {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Queue{
		exec:    exec,
		timeout: timeout,
		bus:     bus,
		logger:  slog.Default(),
	}
}

// Enqueue inserts a task into its lane and returns its id. Local tasks kick
// off a drain of the local lane.
func (q *Queue) Enqueue(t Task) string {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Lane != LaneLocal {
		t.Lane = LaneCloud
	}
	t.Status = StatusPending
	t.CreatedAt = time.Now().UTC()

	q.mu.Lock()
	if t.Lane == LaneLocal {
		q.local = append(q.local, &t)
		sortLane(q.local)
	} else {
		q.cloud = append(q.cloud, &t)
		sortLane(q.cloud)
	}
	q.mu.Unlock()

	q.publishSnapshot()

	if t.Lane == LaneLocal {
		go q.drainLocal()
	}
	return t.ID
}

// sortLane orders a lane by descending priority. The sort is stable, so
// equal priorities keep insertion order.
func sortLane(lane []*Task) {
	sort.SliceStable(lane, func(i, j int) bool {
		return lane[i].Priority > lane[j].Priority
	})
}

// drainLocal executes pending local tasks one at a time until none remain.
// The running flag guards re-entrancy: a second drain while one is in
// flight returns immediately.
func (q *Queue) drainLocal() {
	q.mu.Lock()
	if q.localRunning {
		q.mu.Unlock()
		return
	}
	q.localRunning = true
	q.mu.Unlock()

	for {
		t := q.nextPendingLocal()
		if t == nil {
			break
		}
		q.executeOne(t)
	}

	q.mu.Lock()
	q.localRunning = false
	q.mu.Unlock()
	q.publishSnapshot()
}

// nextPendingLocal returns the highest-priority pending local task, or nil.
func (q *Queue) nextPendingLocal() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.local {
		if t.Status == StatusPending {
			return t
		}
	}
	return nil
}

// executeOne runs a single task against the execution port, racing it
// against the queue's wall-clock timeout. A failure is local to the task;
// it never aborts the lane's draining loop.
func (q *Queue) executeOne(t *Task) {
	q.mu.Lock()
	t.Status = StatusRunning
	t.StartedAt = time.Now().UTC()
	snapshot := *t
	q.mu.Unlock()
	q.publishSnapshot()

	type outcome struct {
		output string
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		out, err := q.exec.Execute(context.Background(), snapshot)
		ch <- outcome{output: out, err: err}
	}()

	var res outcome
	select {
	case res = <-ch:
	case <-time.After(q.timeout):
		res.err = ErrTimeout
	}

	q.mu.Lock()
	t.CompletedAt = time.Now().UTC()
	if res.err != nil {
		t.Status = StatusFailed
		t.Error = res.err.Error()
	} else {
		t.Status = StatusCompleted
		t.Output = res.output
	}
	q.mu.Unlock()

	if res.err != nil {
		q.logger.Warn("queued task failed", "task_id", t.ID, "error", res.err)
	}
	q.publishSnapshot()
}

// ClearCompleted removes every task in a terminal state from both lanes.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	q.local = keepActive(q.local)
	q.cloud = keepActive(q.cloud)
	q.mu.Unlock()
	q.publishSnapshot()
}

func keepActive(lane []*Task) []*Task {
	var out []*Task
	for _, t := range lane {
		if !t.Status.Terminal() {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot returns a copy of the current queue state.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		Local:          copyLane(q.local),
		Cloud:          copyLane(q.cloud),
		IsLocalRunning: q.localRunning,
	}
}

func copyLane(lane []*Task) []Task {
	out := make([]Task, len(lane))
	for i, t := range lane {
		out[i] = *t
	}
	return out
}

func (q *Queue) publishSnapshot() {
	if q.bus != nil {
		q.bus.Publish(events.TypeQueueSnapshot, q.Snapshot())
	}
}
