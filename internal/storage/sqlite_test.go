package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertDocument_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	doc := Document{
		SourcePath: "docs/guide.md",
		DocID:      "abc123",
		Title:      "guide.md",
		Format:     "markdown",
		Status:     StatusSynced,
		ChunkIDs:   []string{"c1", "c2", "c3"},
	}
	if err := s.UpsertDocument(doc); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	got, err := s.GetDocument("docs/guide.md")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.DocID != "abc123" || got.Status != StatusSynced {
		t.Errorf("got %+v", got)
	}
	if len(got.ChunkIDs) != 3 || got.ChunkIDs[1] != "c2" {
		t.Errorf("ChunkIDs = %v", got.ChunkIDs)
	}
	if got.IngestedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not populated")
	}
}

func TestUpsertDocument_ReplacesByPath(t *testing.T) {
	s := openTestStore(t)

	first := Document{SourcePath: "a.md", DocID: "v1", Status: StatusSynced, ChunkIDs: []string{"c1"}}
	if err := s.UpsertDocument(first); err != nil {
		t.Fatalf("UpsertDocument v1: %v", err)
	}

	second := first
	second.DocID = "v2"
	second.ChunkIDs = []string{"c1", "c4"}
	second.Status = StatusPartial
	if err := s.UpsertDocument(second); err != nil {
		t.Fatalf("UpsertDocument v2: %v", err)
	}

	got, err := s.GetDocument("a.md")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.DocID != "v2" || got.Status != StatusPartial || len(got.ChunkIDs) != 2 {
		t.Errorf("got %+v", got)
	}

	docs, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("catalog has %d rows, want 1", len(docs))
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetDocument("missing.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument = %v, want ErrNotFound", err)
	}
}

func TestSetStatus(t *testing.T) {
	s := openTestStore(t)

	doc := Document{SourcePath: "a.md", DocID: "v1", Status: StatusPartial, IngestedAt: time.Now().UTC()}
	if err := s.UpsertDocument(doc); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	if err := s.SetStatus("a.md", StatusSynced); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ := s.GetDocument("a.md")
	if got.Status != StatusSynced {
		t.Errorf("Status = %q, want synced", got.Status)
	}

	if err := s.SetStatus("missing.md", StatusSynced); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus(missing) = %v, want ErrNotFound", err)
	}
}

func TestDocumentsWithStatus(t *testing.T) {
	s := openTestStore(t)

	for _, d := range []Document{
		{SourcePath: "a.md", DocID: "1", Status: StatusSynced},
		{SourcePath: "b.md", DocID: "2", Status: StatusPartial},
		{SourcePath: "c.md", DocID: "3", Status: StatusPartial},
	} {
		if err := s.UpsertDocument(d); err != nil {
			t.Fatalf("UpsertDocument %s: %v", d.SourcePath, err)
		}
	}

	partial, err := s.DocumentsWithStatus(StatusPartial)
	if err != nil {
		t.Fatalf("DocumentsWithStatus: %v", err)
	}
	if len(partial) != 2 || partial[0].SourcePath != "b.md" || partial[1].SourcePath != "c.md" {
		t.Errorf("partial = %+v", partial)
	}
}
