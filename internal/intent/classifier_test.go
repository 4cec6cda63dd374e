package intent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/helmsman-ai/helmsman/internal/engine"
	"github.com/helmsman-ai/helmsman/internal/routing"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
	delay    time.Duration

	gotSchema *engine.Schema
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error) {
	m.gotSchema = jsonSchema
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     routing.Intent
	}{
		{"code", `{"intent":"code_generation"}`, routing.IntentCodeGeneration},
		{"reasoning", `{"intent":"complex_reasoning"}`, routing.IntentComplexReasoning},
		{"quick", `{"intent":"quick_answer"}`, routing.IntentQuickAnswer},
		{"vision", `{"intent":"vision_analysis"}`, routing.IntentVisionAnalysis},
		{"chat", `{"intent":"general_chat"}`, routing.IntentGeneralChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&mockChatter{response: tt.response}, "phi3.5")
			if got := c.Classify(context.Background(), "some prompt"); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_RequestsStructuredOutput(t *testing.T) {
	mock := &mockChatter{response: `{"intent":"general_chat"}`}
	c := NewClassifier(mock, "phi3.5")
	c.Classify(context.Background(), "hello")

	if mock.gotSchema == nil {
		t.Fatal("no JSON schema passed to chat")
	}
	if _, ok := mock.gotSchema.Properties["intent"]; !ok {
		t.Error("schema missing intent property")
	}
}

func TestClassify_MalformedJSONFallsBack(t *testing.T) {
	c := NewClassifier(&mockChatter{response: `not valid json {{{`}, "phi3.5")
	got := c.Classify(context.Background(), "fix this bug in my function")
	if got != routing.IntentCodeGeneration {
		t.Errorf("Classify() = %q, want keyword fallback code_generation", got)
	}
}

func TestClassify_UnknownIntentFallsBack(t *testing.T) {
	c := NewClassifier(&mockChatter{response: `{"intent":"world_domination"}`}, "phi3.5")
	got := c.Classify(context.Background(), "hello there")
	if got != routing.IntentGeneralChat {
		t.Errorf("Classify() = %q, want general_chat", got)
	}
}

func TestClassify_BackendDownFallsBack(t *testing.T) {
	c := NewClassifier(&mockChatter{err: fmt.Errorf("connection refused")}, "phi3.5")
	got := c.Classify(context.Background(), "what is the capital of France")
	if got != routing.IntentQuickAnswer {
		t.Errorf("Classify() = %q, want keyword fallback quick_answer", got)
	}
}

func TestClassify_Timeout(t *testing.T) {
	c := NewClassifier(&mockChatter{response: `{"intent":"code_generation"}`, delay: 5 * time.Second}, "phi3.5")

	start := time.Now()
	got := c.Classify(context.Background(), "hello")
	elapsed := time.Since(start)

	if elapsed > 3500*time.Millisecond {
		t.Errorf("Classify took %v, want < 3.5s", elapsed)
	}
	if got != routing.IntentGeneralChat {
		t.Errorf("Classify() = %q, want keyword fallback", got)
	}
}

func TestClassify_EmptyPrompt(t *testing.T) {
	c := NewClassifier(&mockChatter{response: `{"intent":"quick_answer"}`}, "phi3.5")
	if got := c.Classify(context.Background(), ""); got != routing.IntentGeneralChat {
		t.Errorf("Classify(\"\") = %q, want general_chat", got)
	}
}

func TestKeywordIntent(t *testing.T) {
	tests := []struct {
		text string
		want routing.Intent
	}{
		{"please refactor this function", routing.IntentCodeGeneration},
		{"what is in this screenshot", routing.IntentVisionAnalysis},
		{"compare these two approaches", routing.IntentComplexReasoning},
		{"what is the speed of light", routing.IntentQuickAnswer},
		{"hey, how are you doing", routing.IntentGeneralChat},
	}
	for _, tt := range tests {
		if got := KeywordIntent(tt.text); got != tt.want {
			t.Errorf("KeywordIntent(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
