package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/helmsman-ai/helmsman/internal/events"
	"github.com/helmsman-ai/helmsman/internal/ingest"
	"github.com/helmsman-ai/helmsman/internal/routing"
	"github.com/helmsman-ai/helmsman/internal/task"
)

// ObserveBus consumes event-bus notifications and translates them into
// metric updates until ctx is cancelled. Run it in its own goroutine.
func ObserveBus(ctx context.Context, bus *events.Bus) {
	ch, cancel := bus.Subscribe(256)
	defer cancel()

	obs := newBusObserver()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			obs.record(e)
		}
	}
}

// busObserver holds the cross-event state needed to derive durations and
// per-chunk deltas. Accessed from the single ObserveBus goroutine only.
type busObserver struct {
	taskStarted    map[string]time.Time
	chunksEmbedded map[string]int
}

func newBusObserver() *busObserver {
	return &busObserver{
		taskStarted:    make(map[string]time.Time),
		chunksEmbedded: make(map[string]int),
	}
}

func (o *busObserver) record(e events.Event) {
	switch e.Type {
	case events.TypeRoutingDecision:
		d, ok := e.Payload.(routing.Decision)
		if !ok {
			return
		}
		RoutingDecisions.WithLabelValues(string(d.Intent), d.Model.ID, strconv.FormatBool(d.Fallback)).Inc()
		RoutingConfidence.Observe(d.Confidence)

	case events.TypeRoutingFailure:
		f, ok := e.Payload.(routing.Failure)
		if !ok {
			return
		}
		RoutingFailures.WithLabelValues(string(f.Intent)).Inc()

	case events.TypeQueueSnapshot:
		s, ok := e.Payload.(task.Snapshot)
		if !ok {
			return
		}
		QueueDepth.WithLabelValues(string(task.LaneLocal)).Set(float64(len(s.Local)))
		QueueDepth.WithLabelValues(string(task.LaneCloud)).Set(float64(len(s.Cloud)))

	case events.TypeTaskStarted:
		te, ok := e.Payload.(events.TaskEvent)
		if !ok {
			return
		}
		o.taskStarted[te.TaskID] = e.Time

	case events.TypeTaskCompleted:
		o.finishTask(e, task.StatusCompleted)

	case events.TypeTaskFailed:
		o.finishTask(e, task.StatusFailed)

	case events.TypeIngestProgress:
		p, ok := e.Payload.(ingest.Progress)
		if !ok || p.Stage != ingest.StageEmbedding {
			return
		}
		// Progress carries cumulative counts; convert to a delta so a
		// mid-ingestion scrape is accurate.
		if delta := p.Done - o.chunksEmbedded[p.DocumentID]; delta > 0 {
			ChunksEmbedded.Add(float64(delta))
		}
		if p.Done >= p.Total {
			delete(o.chunksEmbedded, p.DocumentID)
		} else {
			o.chunksEmbedded[p.DocumentID] = p.Done
		}
	}
}

func (o *busObserver) finishTask(e events.Event, status task.Status) {
	TasksTotal.WithLabelValues("direct", string(status)).Inc()

	te, ok := e.Payload.(events.TaskEvent)
	if !ok {
		return
	}
	if started, ok := o.taskStarted[te.TaskID]; ok {
		TaskDuration.WithLabelValues("direct", string(status)).Observe(e.Time.Sub(started).Seconds())
		delete(o.taskStarted, te.TaskID)
	}
}
