package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Sync status of a document in the catalog.
const (
	StatusSynced  = "synced"  // both stores hold the document's live chunks
	StatusPartial = "partial" // vector writes landed, graph writes did not
	StatusFailed  = "failed"  // ingestion failed before any durable progress
)

// Document is the catalog record for one ingested source file. DocID is the
// content-derived version identifier; ChunkIDs is the manifest of live chunk
// identifiers for the current version, used to compute supersede deletions.
type Document struct {
	SourcePath string
	DocID      string
	Title      string
	Format     string
	Status     string
	ChunkIDs   []string
	IngestedAt time.Time
	UpdatedAt  time.Time
}
