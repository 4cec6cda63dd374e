package engine

import "context"

// Embedder binds an embedding model name to the engine's Embed call so
// callers only supply text.
type Embedder struct {
	eng   Engine
	model string
}

func NewEmbedder(eng Engine, model string) *Embedder {
	return &Embedder{eng: eng, model: model}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.eng.Embed(ctx, e.model, text)
}
