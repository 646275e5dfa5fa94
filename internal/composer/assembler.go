// Package composer assembles ranked retrieval candidates into a bounded
// context payload and builds the final answer prompt around it.
package composer

import (
	"fmt"
	"strings"

	"github.com/mkoval/hybridrag/internal/retrieval"
)

const defaultBudget = 4000

// Provenance records where one assembled chunk came from, for trace display.
type Provenance struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// Assembled is the context payload handed to the generation model.
type Assembled struct {
	Context    string       `json:"context"`
	Provenance []Provenance `json:"provenance"`
	Truncated  bool         `json:"truncated"` // candidates were dropped to fit the budget
}

// Assembler selects a prefix of the ranked candidates whose formatted texts
// fit a character budget. Chunks are never split; the first candidate that
// does not fit ends the selection. Deterministic given identical inputs.
type Assembler struct {
	Budget int
}

// New creates an Assembler with the given character budget for assembled
// context. If budget <= 0, the default (4000) is used.
func New(budget int) *Assembler {
	if budget <= 0 {
		budget = defaultBudget
	}
	return &Assembler{Budget: budget}
}

// Assemble builds the context payload from ranked candidates. Candidates
// must already be in final rank order; assembly preserves it.
func (a *Assembler) Assemble(candidates []retrieval.Candidate) Assembled {
	var out Assembled
	var sb strings.Builder

	remaining := a.Budget
	for i, c := range candidates {
		entry := formatCandidate(i+1, c)
		if len(entry) > remaining {
			out.Truncated = true
			break
		}
		sb.WriteString(entry)
		remaining -= len(entry)
		out.Provenance = append(out.Provenance, Provenance{
			ChunkID: c.ChunkID,
			Source:  c.Source,
			Score:   c.Score,
		})
	}

	out.Context = strings.TrimRight(sb.String(), "\n")
	return out
}

func formatCandidate(n int, c retrieval.Candidate) string {
	return fmt.Sprintf("[%d] (%s, score %.2f)\n%s\n\n", n, c.Source, c.Score, c.Text)
}
