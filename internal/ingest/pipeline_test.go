package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helmsman-ai/helmsman/internal/docstore"
	"github.com/helmsman-ai/helmsman/internal/parse"
	"github.com/helmsman-ai/helmsman/internal/storage"
)

type mockEmbedder struct {
	err   error
	delay time.Duration

	running    atomic.Int32
	maxRunning atomic.Int32
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	n := m.running.Add(1)
	for {
		max := m.maxRunning.Load()
		if n <= max || m.maxRunning.CompareAndSwap(max, n) {
			break
		}
	}
	defer m.running.Add(-1)

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return []float32{float32(len(text)), 1, 2}, nil
}

type mockRepo struct {
	mu     sync.Mutex
	err    error
	docs   []storage.Document
	chunks [][]docstore.Chunk
}

func (m *mockRepo) AddDocument(_ context.Context, doc storage.Document, chunks []docstore.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.docs = append(m.docs, doc)
	m.chunks = append(m.chunks, chunks)
	return nil
}

func fixedParser(n int) FileParser {
	return func(path string) ([]parse.Chunk, error) {
		chunks := make([]parse.Chunk, n)
		for i := range chunks {
			chunks[i] = parse.Chunk{
				Text:        fmt.Sprintf("chunk %d", i),
				PageNumber:  1,
				ChunkIndex:  i,
				TotalChunks: n,
			}
		}
		return chunks, nil
	}
}

func TestIngestFile_HappyPath(t *testing.T) {
	repo := &mockRepo{}
	p := NewPipeline(fixedParser(3), &mockEmbedder{}, repo, nil)

	doc := storage.Document{ID: "doc-1", Title: "Test"}
	if err := p.IngestFile(context.Background(), "/tmp/test.txt", doc, nil); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	if len(repo.docs) != 1 || repo.docs[0].ID != "doc-1" {
		t.Fatalf("persisted docs = %+v", repo.docs)
	}
	got := repo.chunks[0]
	if len(got) != 3 {
		t.Fatalf("persisted %d chunks, want 3", len(got))
	}
	for i, c := range got {
		if len(c.Embedding) == 0 {
			t.Errorf("chunk %d has no embedding", i)
		}
		if c.ChunkIndex != i || c.TotalChunks != 3 {
			t.Errorf("chunk %d numbering = %d/%d", i, c.ChunkIndex, c.TotalChunks)
		}
	}
}

func TestIngestFile_ProgressThrottled(t *testing.T) {
	p := NewPipeline(fixedParser(12), &mockEmbedder{}, &mockRepo{}, nil)

	var reports []Progress
	err := p.IngestFile(context.Background(), "/tmp/test.txt", storage.Document{ID: "d"}, func(pr Progress) {
		reports = append(reports, pr)
	})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	var embedding []Progress
	for _, r := range reports {
		if r.Stage == "embedding" {
			embedding = append(embedding, r)
		}
	}
	// 12 chunks: reports at 5, 10, and the final 12.
	if len(embedding) != 3 {
		t.Fatalf("embedding reports = %d (%+v), want 3", len(embedding), embedding)
	}
	last := embedding[len(embedding)-1]
	if last.Done != 12 || last.Total != 12 {
		t.Errorf("final report = %d/%d, want 12/12", last.Done, last.Total)
	}
	if last.ETA != 0 {
		t.Errorf("final report ETA = %v, want 0", last.ETA)
	}
	if reports[0].Stage != "parsing" {
		t.Errorf("first report stage = %q, want parsing", reports[0].Stage)
	}
}

func TestIngestFile_ParseFailureWrapped(t *testing.T) {
	failing := func(path string) ([]parse.Chunk, error) {
		return nil, errors.New("corrupt file")
	}
	p := NewPipeline(failing, &mockEmbedder{}, &mockRepo{}, nil)

	err := p.IngestFile(context.Background(), "/tmp/x.pdf", storage.Document{ID: "d"}, nil)
	if err == nil || !strings.Contains(err.Error(), "parse stage") {
		t.Fatalf("error = %v, want parse stage wrap", err)
	}
}

func TestIngestFile_EmbedFailureWrapped(t *testing.T) {
	p := NewPipeline(fixedParser(2), &mockEmbedder{err: errors.New("engine down")}, &mockRepo{}, nil)

	err := p.IngestFile(context.Background(), "/tmp/x.txt", storage.Document{ID: "d"}, nil)
	if err == nil || !strings.Contains(err.Error(), "embed stage") {
		t.Fatalf("error = %v, want embed stage wrap", err)
	}
}

func TestIngestFile_PersistFailureWrapped(t *testing.T) {
	p := NewPipeline(fixedParser(1), &mockEmbedder{}, &mockRepo{err: errors.New("disk full")}, nil)

	err := p.IngestFile(context.Background(), "/tmp/x.txt", storage.Document{ID: "d"}, nil)
	if err == nil || !strings.Contains(err.Error(), "persist stage") {
		t.Fatalf("error = %v, want persist stage wrap", err)
	}
}

func TestBacklog_BoundedConcurrency(t *testing.T) {
	embedder := &mockEmbedder{delay: 20 * time.Millisecond}
	repo := &mockRepo{}
	b := NewBacklog(NewPipeline(fixedParser(2), embedder, repo, nil))

	var results []<-chan error
	for i := 0; i < 6; i++ {
		doc := storage.Document{ID: fmt.Sprintf("doc-%d", i)}
		results = append(results, b.Submit(context.Background(), "/tmp/x.txt", doc, nil))
	}
	for _, ch := range results {
		if err := <-ch; err != nil {
			t.Fatalf("backlog ingest: %v", err)
		}
	}
	b.Wait()

	if len(repo.docs) != 6 {
		t.Errorf("persisted %d docs, want 6", len(repo.docs))
	}
	if max := embedder.maxRunning.Load(); max > backlogConcurrency {
		t.Errorf("observed %d concurrent embeds, ceiling is %d", max, backlogConcurrency)
	}
}

func TestBacklog_SubmitReportsFailure(t *testing.T) {
	b := NewBacklog(NewPipeline(fixedParser(1), &mockEmbedder{err: errors.New("nope")}, &mockRepo{}, nil))

	ch := b.Submit(context.Background(), "/tmp/x.txt", storage.Document{ID: "d"}, nil)
	if err := <-ch; err == nil {
		t.Fatal("expected error from failed ingestion")
	}
}
