package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
	return path
}

func TestFile_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "guide.md", "# Title\n\nBody text.")

	doc, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if doc.Format != "markdown" {
		t.Errorf("Format = %q, want markdown", doc.Format)
	}
	if doc.Text != "# Title\n\nBody text." {
		t.Errorf("Text = %q", doc.Text)
	}
}

func TestFile_HTMLStripsMarkup(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", `<html><head>
		<style>body { color: red }</style>
		<script>alert("nope")</script>
		</head><body><h1>Heading</h1><p>First paragraph.</p></body></html>`)

	doc, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if doc.Format != "html" {
		t.Errorf("Format = %q, want html", doc.Format)
	}
	if !strings.Contains(doc.Text, "Heading") || !strings.Contains(doc.Text, "First paragraph.") {
		t.Errorf("Text missing visible content: %q", doc.Text)
	}
	if strings.Contains(doc.Text, "alert") || strings.Contains(doc.Text, "color") {
		t.Errorf("Text contains script/style content: %q", doc.Text)
	}
}

func TestFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "binary.bin", "\x00\x01")

	if _, err := File(path); err == nil {
		t.Fatal("File accepted an unsupported extension")
	}
}

func TestDir_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "second")
	writeFile(t, dir, "a.md", "first")
	writeFile(t, dir, "nested/c.htm", "<p>third</p>")
	writeFile(t, dir, "ignored.json", "{}")

	docs, err := Dir(dir)
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if docs[i-1].Path > docs[i].Path {
			t.Errorf("documents not in path order: %s > %s", docs[i-1].Path, docs[i].Path)
		}
	}
}

func TestDir_EmptyDirectoryFails(t *testing.T) {
	if _, err := Dir(t.TempDir()); err == nil {
		t.Fatal("Dir accepted a directory with no supported documents")
	}
	if _, err := Dir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("Dir accepted a missing directory")
	}
}
