package identity

import "testing"

func TestDocumentID_StableAcrossNormalization(t *testing.T) {
	a := DocumentID("Hello world.\nSecond line.\n")
	b := DocumentID("Hello world.\r\nSecond line.\r\n")
	c := DocumentID("  Hello world.\nSecond line.  ")

	if a != b {
		t.Error("CRLF and LF content produced different identifiers")
	}
	if a != c {
		t.Error("outer whitespace changed the identifier")
	}
	if a == DocumentID("Hello world.\nSecond line!") {
		t.Error("different content produced the same identifier")
	}
}

func TestChunkID_Determinism(t *testing.T) {
	first := ChunkID("docs/guide.md", 2, "some chunk text")
	second := ChunkID("docs/guide.md", 2, "some chunk text")
	if first != second {
		t.Error("identical inputs produced different chunk identifiers")
	}
}

func TestChunkID_NoCollisions(t *testing.T) {
	base := ChunkID("docs/guide.md", 2, "some chunk text")

	if base == ChunkID("docs/guide.md", 3, "some chunk text") {
		t.Error("different sequence index collided")
	}
	if base == ChunkID("docs/other.md", 2, "some chunk text") {
		t.Error("different source path collided")
	}
	if base == ChunkID("docs/guide.md", 2, "edited chunk text") {
		t.Error("different text collided")
	}
}
