package retrieval

import (
	"sort"

	"github.com/mkoval/hybridrag/internal/graph"
	"github.com/mkoval/hybridrag/internal/vector"
)

// graphScore converts hop distance to a normalized score: anchors score 1,
// each hop halves-then-thirds relevance.
func graphScore(hops int) float32 {
	return 1 / float32(1+hops)
}

// Merge groups vector hits and graph neighbors by chunk identifier. A chunk
// found by both sources keeps the higher of its two scores and is tagged
// hybrid. Ranking is source priority (hybrid, vector, graph), then score
// descending, then chunk identifier ascending. Pure and deterministic.
func Merge(hits []vector.ScoredRecord, neighbors []graph.Neighbor) []Candidate {
	byID := make(map[string]*Candidate, len(hits)+len(neighbors))
	order := make([]string, 0, len(hits)+len(neighbors))

	for i, h := range hits {
		if _, ok := byID[h.ChunkID]; ok {
			continue
		}
		byID[h.ChunkID] = &Candidate{
			ChunkID:    h.ChunkID,
			Text:       h.Text,
			Source:     SourceVector,
			Score:      h.Score,
			VectorRank: i + 1,
		}
		order = append(order, h.ChunkID)
	}

	for _, n := range neighbors {
		score := graphScore(n.Hops)
		if existing, ok := byID[n.ChunkID]; ok {
			existing.Source = SourceHybrid
			existing.Hops = n.Hops
			if score > existing.Score {
				existing.Score = score
			}
			continue
		}
		byID[n.ChunkID] = &Candidate{
			ChunkID: n.ChunkID,
			Text:    n.Text,
			Source:  SourceGraph,
			Score:   score,
			Hops:    n.Hops,
		}
		order = append(order, n.ChunkID)
	}

	merged := make([]Candidate, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byID[id])
	}
	sortCandidates(merged)
	return merged
}

var sourcePriority = map[string]int{
	SourceHybrid: 0,
	SourceVector: 1,
	SourceGraph:  2,
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if sourcePriority[a.Source] != sourcePriority[b.Source] {
			return sourcePriority[a.Source] < sourcePriority[b.Source]
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ChunkID < b.ChunkID
	})
}
