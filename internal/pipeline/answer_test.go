package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mkoval/hybridrag/internal/composer"
	"github.com/mkoval/hybridrag/internal/engine"
	"github.com/mkoval/hybridrag/internal/retrieval"
)

type stubRetriever struct {
	result retrieval.Result
	err    error
}

func (s *stubRetriever) Retrieve(context.Context, string) (retrieval.Result, error) {
	return s.result, s.err
}

type stubChatter struct {
	response string
	err      error
	seen     []engine.Message
}

func (s *stubChatter) Chat(_ context.Context, _ string, messages []engine.Message, _ *engine.Schema) (string, error) {
	s.seen = messages
	return s.response, s.err
}

func TestAnswer_HappyPath(t *testing.T) {
	retriever := &stubRetriever{result: retrieval.Result{
		TraceID: "trace-1",
		Candidates: []retrieval.Candidate{
			{ChunkID: "c1", Text: "chunks are linked by NEXT_CHUNK edges", Source: retrieval.SourceHybrid, Score: 0.9},
		},
	}}
	chatter := &stubChatter{response: "They are linked sequentially."}

	a := NewAnswerer(retriever, nil, composer.New(4000), chatter, "mistral")
	answer, err := a.Answer(context.Background(), "how are chunks linked?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if answer.Answer != "They are linked sequentially." || answer.TraceID != "trace-1" {
		t.Errorf("answer = %+v", answer)
	}
	if len(answer.Provenance) != 1 || answer.Provenance[0].ChunkID != "c1" {
		t.Errorf("provenance = %+v", answer.Provenance)
	}

	// The chat prompt must carry the assembled context.
	if len(chatter.seen) != 2 || !strings.Contains(chatter.seen[1].Content, "NEXT_CHUNK edges") {
		t.Errorf("chat messages = %+v", chatter.seen)
	}
}

func TestAnswer_CarriesDegradationFlags(t *testing.T) {
	retriever := &stubRetriever{result: retrieval.Result{
		TraceID: "trace-2",
		Partial: true,
		Warning: "graph store unavailable, results are vector-only",
		Candidates: []retrieval.Candidate{
			{ChunkID: "c1", Text: "some text", Source: retrieval.SourceVector, Score: 0.5},
		},
	}}

	a := NewAnswerer(retriever, nil, composer.New(4000), &stubChatter{response: "ok"}, "mistral")
	answer, err := a.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !answer.Partial || answer.Warning == "" {
		t.Errorf("degradation flags lost: %+v", answer)
	}
}

type stubReranker struct {
	reordered []retrieval.Candidate
	err       error
}

func (s *stubReranker) Rerank(context.Context, string, []retrieval.Candidate) ([]retrieval.Candidate, error) {
	return s.reordered, s.err
}

func TestAnswer_RerankerReordersCandidates(t *testing.T) {
	retriever := &stubRetriever{result: retrieval.Result{
		TraceID: "trace-3",
		Candidates: []retrieval.Candidate{
			{ChunkID: "c1", Text: "first", Source: retrieval.SourceVector, Score: 0.9},
			{ChunkID: "c2", Text: "second", Source: retrieval.SourceVector, Score: 0.8},
		},
	}}
	reranker := &stubReranker{reordered: []retrieval.Candidate{
		{ChunkID: "c2", Text: "second", Source: retrieval.SourceVector, Score: 0.95},
	}}

	a := NewAnswerer(retriever, reranker, composer.New(4000), &stubChatter{response: "ok"}, "mistral")
	answer, err := a.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(answer.Provenance) != 1 || answer.Provenance[0].ChunkID != "c2" {
		t.Errorf("provenance = %+v, want reranked c2 only", answer.Provenance)
	}
}

func TestAnswer_RerankerFailureKeepsMergeOrder(t *testing.T) {
	retriever := &stubRetriever{result: retrieval.Result{
		TraceID: "trace-4",
		Candidates: []retrieval.Candidate{
			{ChunkID: "c1", Text: "first", Source: retrieval.SourceHybrid, Score: 0.9},
		},
	}}
	reranker := &stubReranker{err: errors.New("model busy")}

	a := NewAnswerer(retriever, reranker, composer.New(4000), &stubChatter{response: "ok"}, "mistral")
	answer, err := a.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(answer.Provenance) != 1 || answer.Provenance[0].ChunkID != "c1" {
		t.Errorf("provenance = %+v, want original c1", answer.Provenance)
	}
}

func TestAnswer_RetrievalFailurePropagates(t *testing.T) {
	retriever := &stubRetriever{err: retrieval.ErrRetrievalFailed}

	a := NewAnswerer(retriever, nil, composer.New(4000), &stubChatter{}, "mistral")
	if _, err := a.Answer(context.Background(), "q"); !errors.Is(err, retrieval.ErrRetrievalFailed) {
		t.Errorf("err = %v, want ErrRetrievalFailed", err)
	}
}

func TestAnswer_ChatFailurePropagates(t *testing.T) {
	retriever := &stubRetriever{result: retrieval.Result{TraceID: "t"}}
	chatter := &stubChatter{err: errors.New("model not loaded")}

	a := NewAnswerer(retriever, nil, composer.New(4000), chatter, "mistral")
	if _, err := a.Answer(context.Background(), "q"); err == nil {
		t.Error("Answer succeeded with a failing chat backend")
	}
}
