package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document status values. A document's chunks are searchable only once
// its status reaches "ready".
const (
	DocStatusIndexing = "indexing"
	DocStatusReady    = "ready"
)

// Document is the relational metadata row for an ingested document.
type Document struct {
	ID         string
	Title      string
	Path       string
	Status     string // "indexing" or "ready"
	UploadedAt time.Time
}

// ModelRow is a registered model as persisted in the models table.
type ModelRow struct {
	ID           string
	Capabilities string // JSON array stored as text
	Provider     string // "local" or "cloud"
	Enabled      bool
	Priority     int
	SuccessRate  float64
	Position     int // registry order, used for stable tie-breaking
	UpdatedAt    time.Time
}
