package vector

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned (wrapped) when the underlying index cannot be
// reached or read. Callers decide the retry policy.
var ErrUnavailable = errors.New("vector index unavailable")

// Store is the interface for vector storage and similarity search backends.
// The default implementation uses SQLite with brute-force cosine similarity;
// an ANN-capable backend can be swapped in behind the same contract.
type Store interface {
	// Upsert adds or replaces records by chunk identifier. Idempotent:
	// re-upserting an identical identifier is last-write-wins and does not
	// change its insertion order.
	Upsert(ctx context.Context, records []Record) error

	// Delete removes records by chunk identifier. Idempotent: identifiers
	// that are already absent are not an error.
	Delete(ctx context.Context, chunkIDs []string) error

	// Search returns up to topK records ordered by descending cosine
	// similarity. Ties are broken by insertion order, oldest first, so
	// results are deterministic.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// GetByIDs returns the records matching the given chunk identifiers.
	GetByIDs(ctx context.Context, chunkIDs []string) ([]Record, error)

	// IDs returns every live chunk identifier in the index. The
	// reconciliation pass compares this set against the graph's.
	IDs(ctx context.Context) ([]string, error)

	// Count returns the number of live records.
	Count(ctx context.Context) (int, error)
}

// Record is one chunk embedding in the index.
type Record struct {
	ChunkID    string
	DocID      string
	SourcePath string
	Seq        int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
