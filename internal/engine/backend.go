package engine

import "context"

// Backend executes generation requests against local models. It satisfies
// the execution port expected by the task queue and orchestrator.
type Backend struct {
	eng Engine
}

// NewBackend wraps an Engine as a generation backend.
func NewBackend(eng Engine) *Backend {
	return &Backend{eng: eng}
}

// Generate runs a single prompt against the given local model and returns
// the assistant's response.
func (b *Backend) Generate(ctx context.Context, modelID, prompt, systemPrompt string) (string, error) {
	var messages []Message
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})
	return b.eng.Chat(ctx, modelID, messages, nil)
}
