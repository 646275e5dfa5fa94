package graph

import (
	"context"
	"errors"
)

// ErrUnavailable is returned (wrapped) when the graph store cannot be
// reached. Callers decide the retry policy; at query time the retriever
// treats it as a soft failure and degrades to vector-only results.
var ErrUnavailable = errors.New("graph store unavailable")

// Relationship types maintained in the graph.
const (
	RelHasChunk  = "HAS_CHUNK"  // document -> chunk ownership
	RelNextChunk = "NEXT_CHUNK" // sequential chunk ordering
)

// Store is the interface for the property graph backing structural
// retrieval. All upserts are idempotent by identifier (MERGE semantics).
type Store interface {
	// EnsureSchema creates uniqueness constraints for document and chunk
	// identifiers. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	// UpsertDocument creates or updates a document node.
	UpsertDocument(ctx context.Context, doc Document) error

	// UpsertChunks creates or updates chunk nodes under the given document,
	// wiring HAS_CHUNK edges and NEXT_CHUNK edges between consecutive
	// chunks. Chunks must be in sequence order.
	UpsertChunks(ctx context.Context, docID string, chunks []Chunk) error

	// DeleteChunks removes chunk nodes and their edges. Absent identifiers
	// are a no-op.
	DeleteChunks(ctx context.Context, chunkIDs []string) error

	// Traverse returns chunks reachable from the seed chunk identifiers
	// within maxHops over the given relationship types, annotated with
	// hop distance. Seeds are excluded from results.
	Traverse(ctx context.Context, seedIDs []string, maxHops int, relTypes []string, limit int) ([]Neighbor, error)

	// FindByKeywords returns chunks whose text contains any of the given
	// keywords. Used to anchor graph-only retrieval when the vector index
	// is unreachable.
	FindByKeywords(ctx context.Context, keywords []string, limit int) ([]Neighbor, error)

	// ChunkIDs returns every chunk identifier present in the graph. The
	// reconciliation pass compares this set against the vector index's.
	ChunkIDs(ctx context.Context) ([]string, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// Document is a document node.
type Document struct {
	DocID      string
	Title      string
	SourcePath string
}

// Chunk is a chunk node payload for upserts.
type Chunk struct {
	ChunkID string
	Seq     int
	Text    string
}

// Neighbor is a chunk reached by traversal or keyword anchoring. Hops is 0
// for keyword anchors. Text is carried so graph-only retrieval can build
// context without touching the vector index.
type Neighbor struct {
	ChunkID string
	Text    string
	Hops    int
}
