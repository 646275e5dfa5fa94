package chunk

import (
	"errors"
	"strings"
	"testing"

	"github.com/mkoval/hybridrag/internal/config"
)

func TestNew_RejectsBadGeometry(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.size, tt.overlap); !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("New(%d, %d) = %v, want ErrInvalidConfig", tt.size, tt.overlap, err)
			}
		})
	}
}

func TestSplit_CoverageAndOverlap(t *testing.T) {
	c, err := New(500, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text := strings.Repeat("abcdefghij", 130) // 1300 chars -> 3 chunks
	chunks := c.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0].Start != 0 || chunks[0].End != 500 {
		t.Errorf("chunk 0 span = [%d,%d), want [0,500)", chunks[0].Start, chunks[0].End)
	}
	if chunks[1].Start != 400 || chunks[1].End != 900 {
		t.Errorf("chunk 1 span = [%d,%d), want [400,900)", chunks[1].Start, chunks[1].End)
	}
	// Final chunk is truncated, not padded.
	if chunks[2].Start != 800 || chunks[2].End != 1300 {
		t.Errorf("chunk 2 span = [%d,%d), want [800,1300)", chunks[2].Start, chunks[2].End)
	}

	// Consecutive chunks share exactly the configured overlap.
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1].Text[len(chunks[i-1].Text)-100:]
		curHead := chunks[i].Text[:100]
		if prevTail != curHead {
			t.Errorf("chunks %d/%d do not share a 100-char overlap", i-1, i)
		}
	}

	// Full coverage: stitching non-overlapping parts reproduces the text.
	var b strings.Builder
	b.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		b.WriteString(chunks[i].Text[100:])
	}
	if b.String() != text {
		t.Error("stitched chunks do not reproduce the source text")
	}
}

func TestSplit_ShortDocumentYieldsOneChunk(t *testing.T) {
	c, err := New(500, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunks := c.Split("tiny document")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "tiny document" {
		t.Errorf("chunk text = %q", chunks[0].Text)
	}
	if chunks[0].Index != 0 || chunks[0].Start != 0 || chunks[0].End != 13 {
		t.Errorf("chunk = %+v", chunks[0])
	}
}

func TestSplit_EmptyDocument(t *testing.T) {
	c, err := New(500, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if chunks := c.Split(""); len(chunks) != 0 {
		t.Errorf("got %d chunks for empty text, want 0", len(chunks))
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c, err := New(64, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40)
	first := c.Split(text)
	second := c.Split(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunks_LazySequenceIsRestartable(t *testing.T) {
	c, err := New(10, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seq := c.Chunks(strings.Repeat("x", 25))

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	if first, second := count(), count(); first != second || first == 0 {
		t.Errorf("restarted sequence yielded %d then %d chunks", first, second)
	}

	// Early break must not panic or leak.
	for ck := range seq {
		if ck.Index == 0 {
			break
		}
	}
}
