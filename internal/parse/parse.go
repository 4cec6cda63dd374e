// Package parse turns source files into ordered text chunks ready for
// embedding. Parsing runs behind a panic guard so a crash in a format
// parser fails only the document being ingested.
package parse

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Chunk is one embeddable unit of a parsed document.
type Chunk struct {
	Text        string
	PageNumber  int
	ChunkIndex  int
	TotalChunks int
	BoundingBox string
}

// Parser extracts chunks from a file on disk.
type Parser interface {
	Parse(path string) ([]Chunk, error)
}

// ParseFile parses path with the parser matching its extension. PDF, HTML,
// and a handful of plain-text extensions are supported.
func ParseFile(path string) (chunks []Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("parser panicked on %s: %v", filepath.Base(path), r)
		}
	}()

	p, err := parserFor(path)
	if err != nil {
		return nil, err
	}
	return p.Parse(path)
}

func parserFor(path string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return &PDFParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".txt", ".md", ".markdown", ".text", "":
		return &TextParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// numberChunks fills in ChunkIndex and TotalChunks across the whole
// document.
func numberChunks(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}
