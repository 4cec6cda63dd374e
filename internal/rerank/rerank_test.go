package rerank

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helmsman-ai/helmsman/internal/docstore"
	"github.com/helmsman-ai/helmsman/internal/engine"
)

type mockChatter struct {
	chatFn func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error)
}

func (m *mockChatter) Chat(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
	if m.chatFn != nil {
		return m.chatFn(ctx, model, msgs, schema)
	}
	return `{"score": 0.5}`, nil
}

func makeHits(n int, score float32) []docstore.SearchResult {
	hits := make([]docstore.SearchResult, n)
	for i := range hits {
		hits[i] = docstore.SearchResult{
			DocumentID: fmt.Sprintf("doc-%d", i),
			Title:      fmt.Sprintf("title %d", i),
			Text:       fmt.Sprintf("text %d", i),
			Score:      score,
		}
	}
	return hits
}

func newLLMReranker(client Chatter, threshold float64, timeout time.Duration, topK int) *LLMReranker {
	return &LLMReranker{
		client:    client,
		model:     "phi3.5",
		timeout:   timeout,
		threshold: threshold,
		topK:      topK,
	}
}

func TestLLMReranker_ReordersHits(t *testing.T) {
	scores := []float64{0.9, 0.3, 0.7}
	var callIdx atomic.Int32
	client := &mockChatter{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			i := int(callIdx.Add(1)) - 1
			return fmt.Sprintf(`{"score": %g}`, scores[i]), nil
		},
	}

	hits := makeHits(3, 0.5)
	r := newLLMReranker(client, 0.3, 5*time.Second, 0)
	result, err := r.Rerank(context.Background(), "query", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("got %d hits, want 3", len(result))
	}
	wantOrder := []float32{0.9, 0.7, 0.3}
	for i, h := range result {
		if h.Score != wantOrder[i] {
			t.Errorf("result[%d].Score = %g, want %g", i, h.Score, wantOrder[i])
		}
	}
}

func TestLLMReranker_DropsLowScore(t *testing.T) {
	scores := []float64{0.8, 0.1, 0.7}
	var callIdx atomic.Int32
	client := &mockChatter{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			i := int(callIdx.Add(1)) - 1
			return fmt.Sprintf(`{"score": %g}`, scores[i]), nil
		},
	}

	hits := makeHits(3, 0.5)
	r := newLLMReranker(client, 0.3, 5*time.Second, 0)
	result, err := r.Rerank(context.Background(), "query", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("got %d hits, want 2 (low-score hit should be dropped)", len(result))
	}
	for _, h := range result {
		if float64(h.Score) < 0.3 {
			t.Errorf("hit with score %g below threshold was not dropped", h.Score)
		}
	}
}

func TestLLMReranker_AllBelowThreshold(t *testing.T) {
	client := &mockChatter{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return `{"score": 0.1}`, nil
		},
	}

	hits := makeHits(3, 0.9)
	r := newLLMReranker(client, 0.3, 5*time.Second, 0)
	result, err := r.Rerank(context.Background(), "query", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("got %d hits, want 0 when everything scores below threshold", len(result))
	}
}

func TestLLMReranker_TimeoutDegradesToOriginal(t *testing.T) {
	client := &mockChatter{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	hits := makeHits(3, 0.8)
	r := newLLMReranker(client, 0.3, 200*time.Millisecond, 0)

	start := time.Now()
	result, err := r.Rerank(context.Background(), "query", hits)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Rerank took %v, want < 500ms", elapsed)
	}
	if len(result) != 3 {
		t.Fatalf("got %d hits, want the original 3 on timeout", len(result))
	}
	for i, h := range result {
		if h.DocumentID != hits[i].DocumentID || h.Score != hits[i].Score {
			t.Errorf("result[%d] = %+v, want original order preserved", i, h)
		}
	}
}

func TestLLMReranker_MarkdownCodeFence(t *testing.T) {
	client := &mockChatter{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return "```json\n{\"score\": 0.8}\n```", nil
		},
	}

	hits := makeHits(1, 0.5)
	r := newLLMReranker(client, 0.3, 5*time.Second, 0)
	result, err := r.Rerank(context.Background(), "query", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d hits, want 1", len(result))
	}
	if result[0].Score != 0.8 {
		t.Errorf("score = %g, want 0.8 (parsed from markdown-fenced JSON)", result[0].Score)
	}
}

func TestLLMReranker_ConversationalFiller(t *testing.T) {
	client := &mockChatter{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return `The relevance score is: {"score": 0.6}`, nil
		},
	}

	hits := makeHits(1, 0.5)
	r := newLLMReranker(client, 0.3, 5*time.Second, 0)
	result, err := r.Rerank(context.Background(), "query", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].Score != 0.6 {
		t.Errorf("result = %+v, want single hit scored 0.6", result)
	}
}

func TestLLMReranker_MalformedJSON(t *testing.T) {
	client := &mockChatter{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return "completely unparseable garbage", nil
		},
	}

	originalScore := float32(0.9)
	hits := []docstore.SearchResult{{DocumentID: "d1", Text: "text", Score: originalScore}}
	r := newLLMReranker(client, 0.3, 5*time.Second, 0)
	result, err := r.Rerank(context.Background(), "query", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d hits, want 1 (hit should not be dropped on parse failure)", len(result))
	}
	if result[0].Score != originalScore {
		t.Errorf("score = %g, want original %g (should not be penalised)", result[0].Score, originalScore)
	}
}

func TestLLMReranker_EarlyReturn(t *testing.T) {
	const total = 10
	const quickCount = 5

	var callCount atomic.Int32
	client := &mockChatter{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			if int(callCount.Add(1)) <= quickCount {
				return `{"score": 0.8}`, nil
			}
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	hits := makeHits(total, 0.5)
	r := newLLMReranker(client, 0.3, 10*time.Second, quickCount)

	done := make(chan []docstore.SearchResult, 1)
	go func() {
		result, _ := r.Rerank(context.Background(), "query", hits)
		done <- result
	}()

	select {
	case result := <-done:
		if len(result) != quickCount {
			t.Errorf("got %d hits, want %d (early return set)", len(result), quickCount)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Rerank did not return early")
	}
}

func TestLLMReranker_EmptyHits(t *testing.T) {
	r := newLLMReranker(&mockChatter{}, 0.3, 5*time.Second, 0)
	result, err := r.Rerank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("got %d hits, want 0 for empty input", len(result))
	}
}

func TestNoOpReranker(t *testing.T) {
	hits := makeHits(3, 0.5)
	hits[0].Score = 0.3
	hits[1].Score = 0.9
	hits[2].Score = 0.1

	r := &NoOpReranker{}
	result, err := r.Rerank(context.Background(), "query", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, h := range result {
		if h.Score != hits[i].Score {
			t.Errorf("result[%d].Score = %g, want %g (order must be unchanged)", i, h.Score, hits[i].Score)
		}
	}
}

func TestNew_Disabled(t *testing.T) {
	r := New(nil, "", false, 0, 0, 0)
	if _, ok := r.(*NoOpReranker); !ok {
		t.Errorf("New(enabled=false) returned %T, want *NoOpReranker", r)
	}
}

func TestNew_NilClient(t *testing.T) {
	r := New(nil, "phi3.5", true, 5*time.Second, 0.3, 5)
	if _, ok := r.(*NoOpReranker); !ok {
		t.Errorf("New(enabled=true, client=nil) returned %T, want *NoOpReranker", r)
	}
}

func TestNew_Enabled(t *testing.T) {
	r := New(&mockChatter{}, "phi3.5", true, 5*time.Second, 0.3, 5)
	if _, ok := r.(*LLMReranker); !ok {
		t.Errorf("New(enabled=true) returned %T, want *LLMReranker", r)
	}
}
