// Package ingest runs the document ingestion pipeline: parse the source
// file, embed every chunk, and hand the result to the document repository.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helmsman-ai/helmsman/internal/docstore"
	"github.com/helmsman-ai/helmsman/internal/events"
	"github.com/helmsman-ai/helmsman/internal/parse"
	"github.com/helmsman-ai/helmsman/internal/storage"
)

// progressEvery throttles embedding progress reports to one per N chunks.
const progressEvery = 5

// Embedder computes the embedding vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FileParser extracts ordered chunks from a source file.
type FileParser func(path string) ([]parse.Chunk, error)

// Repository persists a parsed, embedded document.
type Repository interface {
	AddDocument(ctx context.Context, doc storage.Document, chunks []docstore.Chunk) error
}

// Pipeline stage names carried on progress reports.
const (
	StageParsing   = "parsing"
	StageParsed    = "parsed"
	StageEmbedding = "embedding"
)

// Progress is one ingestion progress report.
type Progress struct {
	DocumentID string        `json:"document_id"`
	Stage      string        `json:"stage"`
	Done       int           `json:"done"`
	Total      int           `json:"total"`
	ETA        time.Duration `json:"eta,omitempty"`
}

// OnProgress receives throttled pipeline progress. May be nil.
type OnProgress func(Progress)

// Pipeline ingests documents: parse, embed, persist. Each stage failure is
// wrapped with the stage name and propagated to the caller.
type Pipeline struct {
	parser   FileParser
	embedder Embedder
	repo     Repository
	bus      *events.Bus
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline. parser may be nil to use the default
// file-type dispatch.
func NewPipeline(parser FileParser, embedder Embedder, repo Repository, bus *events.Bus) *Pipeline {
	if parser == nil {
		parser = parse.ParseFile
	}
	return &Pipeline{
		parser:   parser,
		embedder: embedder,
		repo:     repo,
		bus:      bus,
		logger:   slog.Default(),
	}
}

// IngestFile runs the full pipeline for one file. The document's chunks
// become searchable only after the repository commits them.
func (p *Pipeline) IngestFile(ctx context.Context, sourcePath string, doc storage.Document, onProgress OnProgress) error {
	start := time.Now()

	p.report(onProgress, Progress{DocumentID: doc.ID, Stage: StageParsing})
	parsed, err := p.parser(sourcePath)
	if err != nil {
		return fmt.Errorf("parse stage: %w", err)
	}
	p.report(onProgress, Progress{DocumentID: doc.ID, Stage: StageParsed, Total: len(parsed)})

	chunks, err := p.embedChunks(ctx, doc.ID, parsed, onProgress)
	if err != nil {
		return fmt.Errorf("embed stage: %w", err)
	}

	if err := p.repo.AddDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("persist stage: %w", err)
	}

	p.logger.Info("document ingested",
		"document_id", doc.ID,
		"chunks", len(chunks),
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

// embedChunks embeds every chunk sequentially. Progress is reported every
// progressEvery chunks with an ETA derived from the running average of
// per-chunk latency.
func (p *Pipeline) embedChunks(ctx context.Context, docID string, parsed []parse.Chunk, onProgress OnProgress) ([]docstore.Chunk, error) {
	chunks := make([]docstore.Chunk, 0, len(parsed))
	start := time.Now()

	for i, c := range parsed {
		embedding, err := p.embedder.Embed(ctx, c.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d/%d: %w", i+1, len(parsed), err)
		}
		chunks = append(chunks, docstore.Chunk{
			Text:        c.Text,
			Embedding:   embedding,
			PageNumber:  c.PageNumber,
			ChunkIndex:  c.ChunkIndex,
			TotalChunks: c.TotalChunks,
			BoundingBox: c.BoundingBox,
		})

		done := i + 1
		if done%progressEvery == 0 || done == len(parsed) {
			avg := time.Since(start) / time.Duration(done)
			eta := avg * time.Duration(len(parsed)-done)
			p.report(onProgress, Progress{
				DocumentID: docID,
				Stage:      StageEmbedding,
				Done:       done,
				Total:      len(parsed),
				ETA:        eta,
			})
		}
	}
	return chunks, nil
}

func (p *Pipeline) report(onProgress OnProgress, pr Progress) {
	if onProgress != nil {
		onProgress(pr)
	}
	if p.bus != nil {
		p.bus.Publish(events.TypeIngestProgress, pr)
	}
}
