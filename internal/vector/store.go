package vector

import (
	"context"
	"time"
)

// Store is the interface for chunk vector storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity; ANN-capable backends can be swapped in behind this interface.
//
// The repository's consistency protocol depends on two properties:
//   - Insert is all-or-nothing for a batch (a partial batch never becomes
//     visible).
//   - DeleteByDocument removes every record tagged with the document id,
//     and deleting a document with no records is a no-op.
type Store interface {
	// Insert adds records in a single batch.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector,
	// ordered by descending similarity.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// GetByDocument returns all records tagged with the given document id.
	GetByDocument(ctx context.Context, documentID string) ([]Record, error)

	// DeleteByDocument removes all records tagged with the given document id.
	DeleteByDocument(documentID string) error

	// CountByDocument returns the number of records tagged with the given
	// document id.
	CountByDocument(documentID string) (int, error)

	// Count returns the total number of records.
	Count() (int, error)
}

// Record is a chunk vector row: one embedded content chunk of a parent document.
type Record struct {
	ID          string
	DocumentID  string
	TextChunk   string
	Embedding   []float32
	PageNumber  int
	ChunkIndex  int
	TotalChunks int
	BoundingBox string // optional, JSON stored as text
	CreatedAt   time.Time
}

// ScoredRecord is a Record with a cosine similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
