package graph

import (
	"strings"
	"testing"
)

func TestTraverseQuery_RelationshipFilter(t *testing.T) {
	query, err := traverseQuery(2, []string{RelNextChunk})
	if err != nil {
		t.Fatalf("traverseQuery: %v", err)
	}
	if !strings.Contains(query, "[:NEXT_CHUNK*1..2]") {
		t.Errorf("query missing bounded expansion: %s", query)
	}
	if !strings.Contains(query, "NOT c.chunk_id IN $seeds") {
		t.Error("query does not exclude seeds")
	}
}

func TestTraverseQuery_DefaultsToBothRelationships(t *testing.T) {
	query, err := traverseQuery(1, nil)
	if err != nil {
		t.Fatalf("traverseQuery: %v", err)
	}
	if !strings.Contains(query, "HAS_CHUNK|NEXT_CHUNK") {
		t.Errorf("query missing default relationship union: %s", query)
	}
}

func TestTraverseQuery_RejectsUnknownRelationship(t *testing.T) {
	// Relationship types are interpolated into Cypher, so anything outside
	// the whitelist must be rejected.
	if _, err := traverseQuery(1, []string{"DROP_EVERYTHING"}); err == nil {
		t.Fatal("traverseQuery accepted an unknown relationship type")
	}
	if _, err := traverseQuery(0, nil); err == nil {
		t.Fatal("traverseQuery accepted zero max hops")
	}
}
