// Package retrieval implements hybrid retrieval: vector similarity search
// expanded by graph traversal, merged into one ranked candidate set. Either
// store may be down; the retriever degrades rather than failing as long as
// one of the two can still answer.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mkoval/hybridrag/internal/graph"
	"github.com/mkoval/hybridrag/internal/intent"
	"github.com/mkoval/hybridrag/internal/vector"
)

// ErrRetrievalFailed is returned when no store can produce candidates for
// the current query. Fatal for the query only, never for the process.
var ErrRetrievalFailed = errors.New("retrieval failed")

// Retrieval state machine stages, in execution order.
const (
	stageEmbedding      = "EMBEDDING"
	stageVectorSearch   = "VECTOR_SEARCH"
	stageGraphExpansion = "GRAPH_EXPANSION"
	stageMerge          = "MERGE"
)

// Candidate source tags, in rank priority order.
const (
	SourceHybrid = "hybrid" // found by both stores
	SourceVector = "vector" // similarity search hit
	SourceGraph  = "graph"  // reached by traversal or keyword anchor
)

// Candidate is one retrieved chunk with scoring provenance.
type Candidate struct {
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Score      float32 `json:"score"`
	VectorRank int     `json:"vector_rank,omitempty"` // 1-based similarity rank, 0 if not a vector hit
	Hops       int     `json:"hops,omitempty"`        // traversal distance, 0 if not a graph hit
}

// Result is the outcome of one retrieval, including any degradation that
// occurred. Candidates are ranked and deduplicated.
type Result struct {
	TraceID    string      `json:"trace_id"`
	Candidates []Candidate `json:"candidates"`
	Partial    bool        `json:"partial,omitempty"`    // graph down, vector-only results
	GraphOnly  bool        `json:"graph_only,omitempty"` // vector down, keyword-anchored results
	Warning    string      `json:"warning,omitempty"`
}

// Embedder embeds query text.
type Embedder interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// KeywordExtractor supplies graph anchors when no embedding is available.
type KeywordExtractor interface {
	Extract(ctx context.Context, query string) intent.Keywords
}

// Options are the per-retriever policy knobs.
type Options struct {
	EmbedModel        string
	TopKVectors       int
	TopKGraph         int
	MaxHops           int
	RelTypes          []string // nil means both HAS_CHUNK and NEXT_CHUNK
	GraphOnlyFallback bool     // degrade to keyword-anchored graph retrieval when the vector path fails
}

// Retriever runs the hybrid retrieval state machine.
type Retriever struct {
	embedder Embedder
	vectors  vector.Store
	graph    graph.Store
	keywords KeywordExtractor
	opts     Options
	logger   *slog.Logger
}

// NewRetriever wires a Retriever. Invalid knobs surface on the first
// Retrieve call rather than here, so construction cannot fail.
func NewRetriever(embedder Embedder, vectors vector.Store, g graph.Store, keywords KeywordExtractor, opts Options) *Retriever {
	if opts.TopKVectors <= 0 {
		opts.TopKVectors = 4
	}
	if opts.TopKGraph <= 0 {
		opts.TopKGraph = 8
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = 1
	}
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		graph:    g,
		keywords: keywords,
		opts:     opts,
		logger:   slog.Default(),
	}
}

// Retrieve runs one query through the state machine and returns the ranked,
// deduplicated candidate set. Degradations are reported on the Result; an
// error is returned only when neither store produced anything.
func (r *Retriever) Retrieve(ctx context.Context, query string) (Result, error) {
	result := Result{TraceID: uuid.New().String()}
	log := r.logger.With("trace_id", result.TraceID)

	log.Debug("retrieval stage", "stage", stageEmbedding)
	embedding, err := r.embedder.Embed(ctx, r.opts.EmbedModel, query)
	if err != nil {
		log.Warn("query embedding failed", "stage", stageEmbedding, "error", err)
		return r.graphOnly(ctx, query, result, err)
	}

	log.Debug("retrieval stage", "stage", stageVectorSearch)
	hits, err := r.vectors.Search(ctx, embedding, r.opts.TopKVectors)
	if err != nil {
		log.Warn("vector search failed", "stage", stageVectorSearch, "error", err)
		return r.graphOnly(ctx, query, result, err)
	}

	log.Debug("retrieval stage", "stage", stageGraphExpansion, "seeds", len(hits))
	var neighbors []graph.Neighbor
	if len(hits) > 0 {
		seeds := make([]string, len(hits))
		for i, h := range hits {
			seeds[i] = h.ChunkID
		}
		neighbors, err = r.graph.Traverse(ctx, seeds, r.opts.MaxHops, r.opts.RelTypes, r.opts.TopKGraph)
		if err != nil {
			log.Warn("graph expansion failed, degrading to vector-only",
				"stage", stageGraphExpansion, "error", err)
			result.Partial = true
			result.Warning = "graph store unavailable, results are vector-only"
			neighbors = nil
		}
	}

	log.Debug("retrieval stage", "stage", stageMerge,
		"vector_hits", len(hits), "graph_hits", len(neighbors))
	result.Candidates = Merge(hits, neighbors)

	log.Info("retrieval complete",
		"candidates", len(result.Candidates), "partial", result.Partial)
	return result, nil
}

// graphOnly is the degradation path when the vector side (embedding or
// search) is unusable: keyword anchors seed the graph directly.
func (r *Retriever) graphOnly(ctx context.Context, query string, result Result, cause error) (Result, error) {
	if !r.opts.GraphOnlyFallback {
		return result, fmt.Errorf("%w: vector path unavailable: %v", ErrRetrievalFailed, cause)
	}

	log := r.logger.With("trace_id", result.TraceID)
	keywords := r.keywords.Extract(ctx, query).All()
	if len(keywords) == 0 {
		return result, fmt.Errorf("%w: vector path unavailable and no keywords extracted: %v", ErrRetrievalFailed, cause)
	}

	anchors, err := r.graph.FindByKeywords(ctx, keywords, r.opts.TopKGraph)
	if err != nil {
		return result, fmt.Errorf("%w: vector path unavailable (%v), graph keyword lookup failed: %v",
			ErrRetrievalFailed, cause, err)
	}

	// Expand one level out from the anchors so the fallback still benefits
	// from document structure.
	var expanded []graph.Neighbor
	if len(anchors) > 0 {
		seeds := make([]string, len(anchors))
		for i, a := range anchors {
			seeds[i] = a.ChunkID
		}
		expanded, err = r.graph.Traverse(ctx, seeds, r.opts.MaxHops, r.opts.RelTypes, r.opts.TopKGraph)
		if err != nil {
			log.Warn("fallback traversal failed, anchors only", "error", err)
			expanded = nil
		}
	}

	seen := make(map[string]struct{}, len(anchors))
	var candidates []Candidate
	for _, a := range anchors {
		seen[a.ChunkID] = struct{}{}
		candidates = append(candidates, Candidate{
			ChunkID: a.ChunkID,
			Text:    a.Text,
			Source:  SourceGraph,
			Score:   graphScore(a.Hops),
			Hops:    a.Hops,
		})
	}
	for _, n := range expanded {
		if _, ok := seen[n.ChunkID]; ok {
			continue
		}
		seen[n.ChunkID] = struct{}{}
		candidates = append(candidates, Candidate{
			ChunkID: n.ChunkID,
			Text:    n.Text,
			Source:  SourceGraph,
			Score:   graphScore(n.Hops),
			Hops:    n.Hops,
		})
	}
	sortCandidates(candidates)
	if len(candidates) > r.opts.TopKGraph {
		candidates = candidates[:r.opts.TopKGraph]
	}

	result.Candidates = candidates
	result.GraphOnly = true
	result.Warning = "vector index unavailable, results are keyword-anchored graph matches"
	log.Info("retrieval complete via graph-only fallback",
		"keywords", len(keywords), "candidates", len(candidates))
	return result, nil
}
