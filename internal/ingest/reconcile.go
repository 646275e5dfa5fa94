package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/mkoval/hybridrag/internal/storage"
	"github.com/mkoval/hybridrag/internal/vector"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	GraphAdded    int `json:"graph_added"`    // chunks replayed into the graph
	GraphRemoved  int `json:"graph_removed"`  // orphaned graph chunks deleted
	DocsRepaired  int `json:"docs_repaired"`  // catalog rows flipped partial -> synced
	VectorChunks  int `json:"vector_chunks"`  // live chunks in the vector index
	GraphChunks   int `json:"graph_chunks"`   // live chunks in the graph after repair
	PartialBefore int `json:"partial_before"` // partial documents found at the start
}

// Reconcile compares the live chunk identifier sets of the two stores and
// repairs the difference. The vector index is authoritative: chunks present
// only in the vector index are replayed into the graph, chunks present only
// in the graph are deleted. Idempotent, safe to run at any time.
func (s *Synchronizer) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	partial, err := s.catalog.DocumentsWithStatus(storage.StatusPartial)
	if err != nil {
		return report, fmt.Errorf("listing partial documents: %w", err)
	}
	report.PartialBefore = len(partial)

	vecIDs, err := s.vectors.IDs(ctx)
	if err != nil {
		return report, fmt.Errorf("listing vector chunk ids: %w", err)
	}
	graphIDs, err := s.graph.ChunkIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("listing graph chunk ids: %w", err)
	}
	report.VectorChunks = len(vecIDs)

	missing := diffIDs(vecIDs, graphIDs)
	orphaned := diffIDs(graphIDs, vecIDs)

	if len(missing) > 0 {
		added, err := s.replayToGraph(ctx, missing)
		if err != nil {
			return report, err
		}
		report.GraphAdded = added
	}

	if len(orphaned) > 0 {
		if err := s.withRetry(ctx, "graph delete", func() error {
			return s.graph.DeleteChunks(ctx, orphaned)
		}); err != nil {
			return report, fmt.Errorf("removing orphaned graph chunks: %w", err)
		}
		report.GraphRemoved = len(orphaned)
	}

	report.GraphChunks = len(graphIDs) - report.GraphRemoved + report.GraphAdded

	for _, doc := range partial {
		if err := s.catalog.SetStatus(doc.SourcePath, storage.StatusSynced); err != nil {
			return report, fmt.Errorf("marking %s synced: %w", doc.SourcePath, err)
		}
		report.DocsRepaired++
	}

	s.logger.Info("reconciliation complete",
		"graph_added", report.GraphAdded,
		"graph_removed", report.GraphRemoved,
		"docs_repaired", report.DocsRepaired)
	return report, nil
}

// replayToGraph re-upserts every chunk of each document that has at least one
// chunk missing from the graph. Re-upserting whole documents keeps the
// NEXT_CHUNK ordering edges intact; MERGE semantics make the overlap free.
func (s *Synchronizer) replayToGraph(ctx context.Context, missing []string) (int, error) {
	records, err := s.vectors.GetByIDs(ctx, missing)
	if err != nil {
		return 0, fmt.Errorf("loading missing chunks from vector index: %w", err)
	}

	byDoc := make(map[string][]vector.Record)
	for _, r := range records {
		byDoc[r.DocID] = append(byDoc[r.DocID], r)
	}

	added := 0
	for docID, sample := range byDoc {
		entry, err := s.catalog.GetDocument(sample[0].SourcePath)
		if err != nil {
			return added, fmt.Errorf("loading catalog entry for %s: %w", sample[0].SourcePath, err)
		}

		full, err := s.vectors.GetByIDs(ctx, entry.ChunkIDs)
		if err != nil {
			return added, fmt.Errorf("loading chunks for %s: %w", entry.SourcePath, err)
		}
		sort.Slice(full, func(i, j int) bool { return full[i].Seq < full[j].Seq })

		if err := s.writeGraph(ctx, docID, entry.SourcePath, entry.Title, full); err != nil {
			return added, fmt.Errorf("replaying %s into graph: %w", entry.SourcePath, err)
		}
		added += len(sample)
	}
	return added, nil
}
