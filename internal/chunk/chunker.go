package chunk

import (
	"fmt"
	"iter"

	"github.com/mkoval/hybridrag/internal/config"
)

// Chunk is a contiguous span of a document's text. Start and End are rune
// offsets into the source text; consecutive chunks share exactly the
// configured overlap, and the final chunk is truncated, never padded.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Chunker splits document text into overlapping chunks. Splitting is purely
// positional, so re-running on unchanged text yields identical boundaries.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Overlap must be smaller than size; violations are
// reported as config.ErrInvalidConfig because they are caller mistakes, not
// transient failures.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", config.ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", config.ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", config.ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunks returns a lazy, restartable sequence of chunks covering text.
// A document shorter than one chunk yields exactly one chunk; empty text
// yields none.
func (c *Chunker) Chunks(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		runes := []rune(text)
		if len(runes) == 0 {
			return
		}

		step := c.size - c.overlap
		index := 0
		for start := 0; ; start += step {
			end := start + c.size
			if end > len(runes) {
				end = len(runes)
			}
			ck := Chunk{
				Index: index,
				Text:  string(runes[start:end]),
				Start: start,
				End:   end,
			}
			if !yield(ck) {
				return
			}
			if end == len(runes) {
				return
			}
			index++
		}
	}
}

// Split materializes the full chunk sequence for text.
func (c *Chunker) Split(text string) []Chunk {
	var chunks []Chunk
	for ck := range c.Chunks(text) {
		chunks = append(chunks, ck)
	}
	return chunks
}
