// Package intent extracts search keywords from a user query. Keywords anchor
// graph-side retrieval when the vector index is unreachable and no embedding
// similarity is available.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mkoval/hybridrag/internal/engine"
)

const extractionTimeout = 3 * time.Second

// Chatter is the interface for structured chat completion.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Keywords holds the structured extraction result for a query.
type Keywords struct {
	Keywords []string `json:"keywords"`
	Entities []string `json:"entities"`
}

// All returns entities and keywords as one deduplicated list, entities first
// since they make the more selective graph anchors.
func (k Keywords) All() []string {
	seen := make(map[string]struct{}, len(k.Entities)+len(k.Keywords))
	var out []string
	for _, list := range [][]string{k.Entities, k.Keywords} {
		for _, kw := range list {
			if kw == "" {
				continue
			}
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

// Extractor uses a fast local LLM to pull search keywords out of queries.
type Extractor struct {
	client Chatter
	model  string
}

// NewExtractor creates an Extractor using the given chat client and model name.
func NewExtractor(client Chatter, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract analyses the query and returns its keywords. On any failure
// (timeout, malformed JSON, backend error) it falls back to heuristic
// tokenization; keyword extraction must never block retrieval.
func (e *Extractor) Extract(ctx context.Context, query string) Keywords {
	if query == "" {
		return Keywords{}
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	raw, err := e.client.Chat(ctx, e.model, BuildPrompt(query), keywordSchema())
	if err != nil {
		slog.Warn("keyword extraction chat failed, using heuristic", "error", err)
		return Keywords{Keywords: heuristicKeywords(query)}
	}

	var result Keywords
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("failed to unmarshal keywords from LLM response", "error", err, "response", raw)
		return Keywords{Keywords: heuristicKeywords(query)}
	}
	if len(result.All()) == 0 {
		return Keywords{Keywords: heuristicKeywords(query)}
	}
	return result
}

// keywordSchema returns the JSON schema for structured keyword output.
func keywordSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"keywords": {Type: "array", Description: "Search terms that would locate relevant passages"},
			"entities": {Type: "array", Description: "Named entities mentioned in the query"},
		},
		Required: []string{"keywords", "entities"},
	}
}
