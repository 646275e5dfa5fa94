// Package pipeline orchestrates the query flow: hybrid retrieval, context
// assembly, and answer generation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkoval/hybridrag/internal/composer"
	"github.com/mkoval/hybridrag/internal/engine"
	"github.com/mkoval/hybridrag/internal/retrieval"
)

// Retriever produces ranked candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (retrieval.Result, error)
}

// Reranker re-scores candidates before assembly. A no-op implementation
// is used when reranking is disabled.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []retrieval.Candidate) ([]retrieval.Candidate, error)
}

// Chatter generates the final answer.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Answer is the result of one question, with retrieval diagnostics attached.
type Answer struct {
	TraceID    string                `json:"trace_id"`
	Question   string                `json:"question"`
	Answer     string                `json:"answer"`
	Provenance []composer.Provenance `json:"provenance"`
	Warning    string                `json:"warning,omitempty"`
	Partial    bool                  `json:"partial,omitempty"`
	GraphOnly  bool                  `json:"graph_only,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
}

// Answerer runs the full question pipeline.
type Answerer struct {
	retriever Retriever
	reranker  Reranker
	assembler *composer.Assembler
	chatter   Chatter
	chatModel string
	logger    *slog.Logger
}

// NewAnswerer wires an Answerer from its components. A nil reranker skips
// the reranking stage.
func NewAnswerer(retriever Retriever, reranker Reranker, assembler *composer.Assembler, chatter Chatter, chatModel string) *Answerer {
	return &Answerer{
		retriever: retriever,
		reranker:  reranker,
		assembler: assembler,
		chatter:   chatter,
		chatModel: chatModel,
		logger:    slog.Default(),
	}
}

// Answer retrieves context for the question, assembles it under the budget,
// and asks the chat model. Retrieval degradations are carried through on the
// Answer rather than failing the question.
func (a *Answerer) Answer(ctx context.Context, question string) (Answer, error) {
	start := time.Now()

	result, err := a.retriever.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	candidates := result.Candidates
	if a.reranker != nil {
		reranked, rerr := a.reranker.Rerank(ctx, question, candidates)
		if rerr != nil {
			a.logger.Warn("reranking failed, keeping merge order", "trace_id", result.TraceID, "error", rerr)
		} else {
			candidates = reranked
		}
	}

	assembled := a.assembler.Assemble(candidates)
	messages := composer.BuildAnswerPrompt(question, assembled.Context)

	text, err := a.chatter.Chat(ctx, a.chatModel, messages, nil)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	answer := Answer{
		TraceID:    result.TraceID,
		Question:   question,
		Answer:     text,
		Provenance: assembled.Provenance,
		Warning:    result.Warning,
		Partial:    result.Partial,
		GraphOnly:  result.GraphOnly,
		DurationMs: time.Since(start).Milliseconds(),
	}

	a.logger.Debug("answer pipeline complete",
		"trace_id", result.TraceID,
		"chunks_used", len(assembled.Provenance),
		"truncated", assembled.Truncated,
		"duration_ms", answer.DurationMs,
	)
	return answer, nil
}
