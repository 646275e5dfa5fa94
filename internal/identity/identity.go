// Package identity derives the content-addressed identifiers shared between
// the vector index and the graph. Identical content always hashes to the
// identical identifier, which is what lets the synchronizer skip no-op
// re-ingestions and detect true changes without comparing stores.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Normalize canonicalizes document text before hashing: line endings become
// LF and outer whitespace is trimmed. Hashing source text (never embeddings)
// keeps identifiers stable even if the embedding model is non-deterministic.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}

// DocumentID returns the version identifier for a document's canonical
// content. Any content change produces a different identifier.
func DocumentID(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:16])
}

// ChunkID returns the identifier for a chunk. It hashes the source path, the
// sequence index, and the normalized chunk text, so:
//   - unchanged chunks keep their identifier across re-ingestion,
//   - an edited chunk gets a new identifier,
//   - identical text in different documents (or at different positions)
//     cannot collide.
func ChunkID(sourcePath string, seq int, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s", sourcePath, seq, Normalize(text))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
