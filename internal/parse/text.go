package parse

import (
	"fmt"
	"os"
)

// TextParser handles plain text and markdown files. The whole file is one
// page.
type TextParser struct{}

func (p *TextParser) Parse(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	pieces := chunkText(string(data))
	chunks := make([]Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = Chunk{Text: text, PageNumber: 1}
	}
	return numberChunks(chunks), nil
}
