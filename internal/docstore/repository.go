// Package docstore owns the transactional protocol linking the relational
// metadata store and the vector store. The two stores fail independently;
// the repository approximates atomicity with a status flag plus
// compensating deletes so they never disagree about which documents are
// searchable.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helmsman-ai/helmsman/internal/storage"
	"github.com/helmsman-ai/helmsman/internal/vector"
)

// MetaStore abstracts the relational metadata operations the repository needs.
type MetaStore interface {
	InsertDocument(d storage.Document) error
	GetDocument(id string) (storage.Document, error)
	DocumentExists(id string) (bool, error)
	SetDocumentStatus(id, status string) error
	DeleteDocument(id string) error
	ListDocumentsByStatus(status string, limit int) ([]storage.Document, error)
	GetDocumentsByIDs(ids []string, status string) ([]storage.Document, error)
}

// VectorStore abstracts the vector operations the repository needs.
type VectorStore interface {
	Insert(records []vector.Record) error
	Search(queryVector []float32, topK int) ([]vector.ScoredRecord, error)
	DeleteByDocument(documentID string) error
}

// Chunk is one parsed, embedded content chunk handed to AddDocument.
type Chunk struct {
	Text        string
	Embedding   []float32
	PageNumber  int
	ChunkIndex  int
	TotalChunks int
	BoundingBox string
}

// SearchResult is one hit returned by Search.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	PageNumber int     `json:"page_number"`
}

// Repository links the metadata store and the vector store.
type Repository struct {
	meta    MetaStore
	vectors VectorStore
	logger  *slog.Logger
}

// New creates a Repository over the given stores.
func New(meta MetaStore, vectors VectorStore) *Repository {
	return &Repository{meta: meta, vectors: vectors, logger: slog.Default()}
}

// AddDocument persists a document's metadata and chunk vectors.
//
// The protocol, in order:
//  1. Insert the metadata row with status "indexing". This commit is the
//     durability checkpoint: a crash after it leaves a stalled row that
//     VerifyIntegrity purges on the next startup.
//  2. Empty documents transition straight to "ready".
//  3. Batch-write all chunk vectors tagged with the document id.
//  4. Re-check the metadata row still exists. A concurrent delete may have
//     removed it during step 3; if so, delete the just-written vectors and
//     return without error; the delete won the race.
//  5. Transition to "ready". Only now is the document searchable.
//
// Any failure triggers full cleanup and surfaces a wrapped error.
func (r *Repository) AddDocument(ctx context.Context, doc storage.Document, chunks []Chunk) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.Status = storage.DocStatusIndexing
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}

	if err := r.meta.InsertDocument(doc); err != nil {
		return fmt.Errorf("inserting metadata for %s: %w", doc.ID, err)
	}

	// An empty document is vacuously consistent.
	if len(chunks) == 0 {
		if err := r.meta.SetDocumentStatus(doc.ID, storage.DocStatusReady); err != nil {
			r.cleanup(doc.ID)
			return fmt.Errorf("marking empty document %s ready: %w", doc.ID, err)
		}
		return nil
	}

	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			TextChunk:   c.Text,
			Embedding:   c.Embedding,
			PageNumber:  c.PageNumber,
			ChunkIndex:  c.ChunkIndex,
			TotalChunks: c.TotalChunks,
			BoundingBox: c.BoundingBox,
			CreatedAt:   time.Now().UTC(),
		}
	}

	if err := r.vectors.Insert(records); err != nil {
		r.cleanup(doc.ID)
		return fmt.Errorf("writing vectors for %s: %w", doc.ID, err)
	}

	// Recheck after the vector write: a concurrent delete may have removed
	// the metadata row while step 3 was in flight. Do not simplify this
	// away; it is the only guard against that race.
	exists, err := r.meta.DocumentExists(doc.ID)
	if err != nil {
		r.cleanup(doc.ID)
		return fmt.Errorf("rechecking metadata for %s: %w", doc.ID, err)
	}
	if !exists {
		if err := r.vectors.DeleteByDocument(doc.ID); err != nil {
			r.logger.Warn("rolling back vectors after concurrent delete", "document_id", doc.ID, "error", err)
		}
		r.logger.Info("concurrent delete won, ingestion rolled back", "document_id", doc.ID)
		return nil
	}

	if err := r.meta.SetDocumentStatus(doc.ID, storage.DocStatusReady); err != nil {
		r.cleanup(doc.ID)
		return fmt.Errorf("marking document %s ready: %w", doc.ID, err)
	}
	return nil
}

// Search returns hits for the query vector, restricted to documents whose
// status is "ready".
//
// A nil query vector is browse mode: the most recent ready documents are
// returned as synthetic single-chunk results with no vector query issued,
// so a caller can list documents without needing an embedding.
func (r *Repository) Search(ctx context.Context, queryVector []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	if queryVector == nil {
		docs, err := r.meta.ListDocumentsByStatus(storage.DocStatusReady, limit)
		if err != nil {
			return nil, fmt.Errorf("listing ready documents: %w", err)
		}
		results := make([]SearchResult, len(docs))
		for i, d := range docs {
			results[i] = SearchResult{
				DocumentID: d.ID,
				Title:      d.Title,
				Score:      1,
			}
		}
		return results, nil
	}

	scored, err := r.vectors.Search(queryVector, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(scored) == 0 {
		return nil, nil
	}

	// Collect distinct parent ids, then fetch metadata restricted to ready.
	var ids []string
	seen := make(map[string]bool)
	for _, s := range scored {
		if !seen[s.DocumentID] {
			seen[s.DocumentID] = true
			ids = append(ids, s.DocumentID)
		}
	}

	docs, err := r.meta.GetDocumentsByIDs(ids, storage.DocStatusReady)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	ready := make(map[string]storage.Document, len(docs))
	for _, d := range docs {
		ready[d.ID] = d
	}

	// Drop hits whose parent is missing or not ready (mid-ingestion, or
	// deleted after the vector query ran).
	var results []SearchResult
	for _, s := range scored {
		doc, ok := ready[s.DocumentID]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			DocumentID: s.DocumentID,
			Title:      doc.Title,
			Text:       s.TextChunk,
			Score:      s.Score,
			PageNumber: s.PageNumber,
		})
	}
	return results, nil
}

// DeleteDocument removes a document and its vectors. Vector deletion runs
// first and is best-effort: a crash mid-delete leaves at worst orphaned
// vectors, never a ready metadata row pointing at removed vectors.
func (r *Repository) DeleteDocument(id string) error {
	if err := r.vectors.DeleteByDocument(id); err != nil {
		r.logger.Warn("best-effort vector delete failed", "document_id", id, "error", err)
	}
	if err := r.meta.DeleteDocument(id); err != nil {
		return fmt.Errorf("deleting metadata for %s: %w", id, err)
	}
	return nil
}

// VerifyIntegrity purges every document stalled in status "indexing", that
// is, uploads that crashed before reaching "ready". Run once at startup; running
// it again immediately is a no-op. Returns the number of purged documents.
func (r *Repository) VerifyIntegrity(ctx context.Context) (int, error) {
	stalled, err := r.meta.ListDocumentsByStatus(storage.DocStatusIndexing, 1000)
	if err != nil {
		return 0, fmt.Errorf("listing stalled documents: %w", err)
	}

	purged := 0
	for _, d := range stalled {
		if err := r.DeleteDocument(d.ID); err != nil {
			r.logger.Warn("purging stalled document", "document_id", d.ID, "error", err)
			continue
		}
		r.logger.Info("purged stalled upload", "document_id", d.ID, "title", d.Title)
		purged++
	}
	return purged, nil
}

// cleanup removes all traces of a document after a failed ingestion.
func (r *Repository) cleanup(id string) {
	if err := r.DeleteDocument(id); err != nil {
		r.logger.Warn("cleanup after failed ingestion", "document_id", id, "error", err)
	}
}
