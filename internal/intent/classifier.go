// Package intent classifies prompts into task intents using a fast local
// model, with a static keyword heuristic as fallback.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/helmsman-ai/helmsman/internal/engine"
	"github.com/helmsman-ai/helmsman/internal/routing"
)

const classificationTimeout = 3 * time.Second

// Chatter is the chat completion surface the classifier needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Classifier uses a fast local LLM to tag prompts with an intent.
type Classifier struct {
	client Chatter
	model  string
}

// NewClassifier creates a Classifier using the given chat client and model
// name.
func NewClassifier(client Chatter, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// classification is the structured output requested from the model.
type classification struct {
	Intent string `json:"intent"`
}

// Classify analyses the prompt and returns its intent tag. On any failure
// (timeout, malformed JSON, unknown tag, backend error) it falls back to a
// keyword heuristic; classification must never block or fail a request.
func (c *Classifier) Classify(ctx context.Context, text string) routing.Intent {
	if text == "" {
		return routing.IntentGeneralChat
	}

	ctx, cancel := context.WithTimeout(ctx, classificationTimeout)
	defer cancel()

	raw, err := c.client.Chat(ctx, c.model, BuildPrompt(text), classificationSchema())
	if err != nil {
		slog.Warn("intent classification chat failed", "error", err)
		return KeywordIntent(text)
	}

	var result classification
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("failed to unmarshal intent from LLM response", "error", err, "response", raw)
		return KeywordIntent(text)
	}

	intent := routing.Intent(result.Intent)
	if !knownIntent(intent) {
		slog.Warn("LLM returned unknown intent", "intent", result.Intent)
		return KeywordIntent(text)
	}
	return intent
}

func knownIntent(i routing.Intent) bool {
	switch i {
	case routing.IntentGeneralChat, routing.IntentQuickAnswer,
		routing.IntentComplexReasoning, routing.IntentCodeGeneration,
		routing.IntentVisionAnalysis:
		return true
	}
	return false
}

// classificationSchema returns the JSON schema for structured intent output.
func classificationSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"intent": {Type: "string", Description: "One of: general_chat, quick_answer, complex_reasoning, code_generation, vision_analysis"},
		},
		Required: []string{"intent"},
	}
}
