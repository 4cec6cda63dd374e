package ingest

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/helmsman-ai/helmsman/internal/storage"
)

// backlogConcurrency is the worker ceiling for backlog ingestion. Direct
// IngestFile calls bypass the ceiling for immediate interactive feedback.
const backlogConcurrency = 2

// Backlog runs pipeline ingestions in the background with bounded
// concurrency.
type Backlog struct {
	pipeline *Pipeline
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewBacklog wraps a Pipeline with a bounded background worker pool.
func NewBacklog(pipeline *Pipeline) *Backlog {
	return &Backlog{
		pipeline: pipeline,
		sem:      semaphore.NewWeighted(backlogConcurrency),
		logger:   slog.Default(),
	}
}

// Submit schedules a file for background ingestion. It returns immediately;
// the result channel receives the ingestion error (or nil) once the
// pipeline finishes.
func (b *Backlog) Submit(ctx context.Context, sourcePath string, doc storage.Document, onProgress OnProgress) <-chan error {
	result := make(chan error, 1)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		if err := b.sem.Acquire(ctx, 1); err != nil {
			result <- err
			return
		}
		defer b.sem.Release(1)

		err := b.pipeline.IngestFile(ctx, sourcePath, doc, onProgress)
		if err != nil {
			b.logger.Warn("backlog ingestion failed", "document_id", doc.ID, "error", err)
		}
		result <- err
	}()

	return result
}

// Wait blocks until every submitted ingestion has finished.
func (b *Backlog) Wait() {
	b.wg.Wait()
}
