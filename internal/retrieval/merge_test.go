package retrieval

import (
	"reflect"
	"testing"

	"github.com/mkoval/hybridrag/internal/graph"
	"github.com/mkoval/hybridrag/internal/vector"
)

func scored(id string, score float32) vector.ScoredRecord {
	return vector.ScoredRecord{
		Record: vector.Record{ChunkID: id, Text: "text for " + id},
		Score:  score,
	}
}

func TestMerge_ChunkFromBothSourcesBecomesHybrid(t *testing.T) {
	// Chunk c2 is both a strong vector hit and one hop away from c1.
	hits := []vector.ScoredRecord{
		scored("c1", 0.95),
		scored("c2", 0.9),
		scored("c5", 0.4),
	}
	neighbors := []graph.Neighbor{
		{ChunkID: "c2", Text: "text for c2", Hops: 1},
		{ChunkID: "c3", Text: "text for c3", Hops: 1},
	}

	merged := Merge(hits, neighbors)

	if len(merged) != 4 {
		t.Fatalf("got %d candidates, want 4 (c2 deduplicated)", len(merged))
	}
	if merged[0].ChunkID != "c2" || merged[0].Source != SourceHybrid {
		t.Errorf("top candidate = %s/%s, want c2/hybrid", merged[0].ChunkID, merged[0].Source)
	}
	// Hybrid keeps the higher of the two scores: similarity 0.9 beats 1/(1+1).
	if merged[0].Score != 0.9 {
		t.Errorf("hybrid score = %v, want 0.9", merged[0].Score)
	}
	if merged[0].VectorRank != 2 || merged[0].Hops != 1 {
		t.Errorf("provenance = rank %d hops %d, want rank 2 hops 1", merged[0].VectorRank, merged[0].Hops)
	}
	// Hybrid outranks every vector-only and graph-only candidate.
	for _, c := range merged[1:] {
		if c.Source == SourceHybrid {
			t.Errorf("unexpected second hybrid %s", c.ChunkID)
		}
	}
}

func TestMerge_SourcePriorityThenScoreThenID(t *testing.T) {
	hits := []vector.ScoredRecord{
		scored("v-low", 0.2),
		scored("v-high", 0.8),
	}
	neighbors := []graph.Neighbor{
		{ChunkID: "g-near", Hops: 0}, // score 1.0, still below any vector hit
		{ChunkID: "g-far", Hops: 2},
	}

	merged := Merge(hits, neighbors)

	want := []string{"v-high", "v-low", "g-near", "g-far"}
	got := make([]string, len(merged))
	for i, c := range merged {
		got[i] = c.ChunkID
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestMerge_TieBreakByChunkID(t *testing.T) {
	hits := []vector.ScoredRecord{
		scored("bbb", 0.5),
		scored("aaa", 0.5),
	}
	merged := Merge(hits, nil)
	if merged[0].ChunkID != "aaa" || merged[1].ChunkID != "bbb" {
		t.Errorf("tie order = %s, %s; want aaa, bbb", merged[0].ChunkID, merged[1].ChunkID)
	}
}

func TestMerge_GraphScoreFromHops(t *testing.T) {
	neighbors := []graph.Neighbor{
		{ChunkID: "c1", Hops: 1},
		{ChunkID: "c2", Hops: 3},
	}
	merged := Merge(nil, neighbors)
	if merged[0].Score != 0.5 {
		t.Errorf("1-hop score = %v, want 0.5", merged[0].Score)
	}
	if merged[1].Score != 0.25 {
		t.Errorf("3-hop score = %v, want 0.25", merged[1].Score)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	hits := []vector.ScoredRecord{
		scored("c1", 0.9), scored("c2", 0.7), scored("c3", 0.7),
	}
	neighbors := []graph.Neighbor{
		{ChunkID: "c2", Hops: 1}, {ChunkID: "c4", Hops: 1}, {ChunkID: "c5", Hops: 2},
	}

	first := Merge(hits, neighbors)
	for run := 0; run < 5; run++ {
		if again := Merge(hits, neighbors); !reflect.DeepEqual(again, first) {
			t.Fatalf("run %d: merge ordering changed: %v vs %v", run, again, first)
		}
	}
}

func TestMerge_Empty(t *testing.T) {
	if merged := Merge(nil, nil); len(merged) != 0 {
		t.Errorf("Merge(nil, nil) = %v, want empty", merged)
	}
}
