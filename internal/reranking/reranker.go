// Package reranking re-scores retrieval candidates by query relevance using
// a local LLM. Optional: when disabled the candidates pass through in their
// hybrid-merge order.
package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mkoval/hybridrag/internal/engine"
	"github.com/mkoval/hybridrag/internal/retrieval"
)

const defaultConcurrency = 3

// Reranker re-scores retrieved candidates by query relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []retrieval.Candidate) ([]retrieval.Candidate, error)
}

// NewReranker returns an LLMReranker if enabled, NoOpReranker otherwise.
//
// topK controls the early-return threshold: once topK candidates have been
// scored, the reranker returns that subset immediately without waiting for
// the rest. Set topK to 0 (or >= len(candidates)) to disable early return.
func NewReranker(eng engine.Engine, model string, enabled bool, timeout time.Duration, threshold float64, topK int) Reranker {
	if !enabled || eng == nil {
		return &NoOpReranker{}
	}
	return &LLMReranker{
		engine:    eng,
		model:     model,
		timeout:   timeout,
		threshold: threshold,
		topK:      topK,
	}
}

// LLMReranker uses a local LLM to score (query, candidate) relevance pairs.
// Scoring runs concurrently (bounded to defaultConcurrency goroutines).
// Results are filtered by threshold and sorted by score descending.
type LLMReranker struct {
	engine    engine.Engine
	model     string
	timeout   time.Duration
	threshold float64
	topK      int // early-return threshold; 0 = score all
}

// Rerank scores each candidate against the query and returns a filtered,
// sorted result set. If the timeout fires before scoring completes, the
// original candidate order is returned unchanged (graceful degradation).
func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []retrieval.Candidate) ([]retrieval.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Early return fires when topK > 0 and topK < len(candidates).
	earlyReturnAt := r.topK
	if earlyReturnAt <= 0 || earlyReturnAt >= len(candidates) {
		earlyReturnAt = 0
	}

	// Buffered channel prevents goroutines from blocking on send after we stop reading.
	results := make(chan retrieval.Candidate, len(candidates))
	sem := make(chan struct{}, defaultConcurrency)

	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Add(1)
		go func(cand retrieval.Candidate) {
			defer wg.Done()
			// Acquire concurrency slot or bail on cancellation.
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			score, err := r.scoreCandidate(timeoutCtx, query, cand)
			if err != nil {
				if timeoutCtx.Err() != nil {
					return // context cancelled, don't send partial result
				}
				slog.Debug("reranker: score failed, retaining original", "error", err)
				results <- cand // original score preserved
				return
			}
			cand.Score = float32(score)
			results <- cand
		}(c)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	scored := make([]retrieval.Candidate, 0, len(candidates))
collect:
	for {
		select {
		case c, ok := <-results:
			if !ok {
				break collect // all goroutines finished
			}
			scored = append(scored, c)
			if earlyReturnAt > 0 && len(scored) >= earlyReturnAt {
				cancel() // stop remaining goroutines
				break collect
			}
		case <-timeoutCtx.Done():
			// Hard timeout hit before enough candidates were scored.
			return candidates, nil
		}
	}

	if len(scored) == 0 {
		return candidates, nil
	}

	// Filter candidates below the relevance threshold.
	filtered := make([]retrieval.Candidate, 0, len(scored))
	for _, c := range scored {
		if float64(c.Score) >= r.threshold {
			filtered = append(filtered, c)
		}
	}

	// Sort by score descending, chunk identifier as the tie-break so the
	// reranked order stays deterministic.
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].ChunkID < filtered[j].ChunkID
	})

	return filtered, nil
}

func (r *LLMReranker) scoreCandidate(ctx context.Context, query string, cand retrieval.Candidate) (float64, error) {
	prompt := "Rate the relevance of the following text to the query on a scale of 0.0 to 1.0.\n" +
		"Query: " + query + "\n" +
		"Text: " + cand.Text + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	schema := &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0.0-1.0"},
		},
		Required: []string{"score"},
	}

	resp, err := r.engine.Chat(ctx, r.model, []engine.Message{
		{Role: "user", Content: prompt},
	}, schema)
	if err != nil {
		return float64(cand.Score), err
	}

	score, parseErr := parseScore(resp, cand.Score)
	if parseErr != nil {
		slog.Debug("reranker: parse failed, using original score", "resp", resp, "error", parseErr)
		return float64(cand.Score), nil
	}
	return score, nil
}

// parseScore robustly extracts a relevance score float from an LLM response.
// Small local models frequently wrap JSON in markdown code fences or prepend
// conversational filler. The parser:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the first { and last } to extract the JSON object
//  3. Attempts json.Unmarshal on the extracted substring
//  4. On failure: returns originalScore so the candidate is not penalised
func parseScore(resp string, originalScore float32) (float64, error) {
	s := strings.TrimSpace(resp)

	// Strip markdown code fences.
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	// Extract JSON object by brace position.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return float64(originalScore), fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return float64(originalScore), fmt.Errorf("unmarshal score: %w", err)
	}
	return obj.Score, nil
}

// NoOpReranker passes candidates through unchanged. Used when reranking is
// disabled.
type NoOpReranker struct{}

func (n *NoOpReranker) Rerank(_ context.Context, _ string, candidates []retrieval.Candidate) ([]retrieval.Candidate, error) {
	return candidates, nil
}
