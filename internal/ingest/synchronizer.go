// Package ingest keeps the vector index and the graph in sync without
// cross-store transactions. Writes go to the vector index first, then to the
// graph; a failure in between leaves the document in a partial state that the
// reconciliation pass can repair, because every write is idempotent by
// content-addressed identifier.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkoval/hybridrag/internal/chunk"
	"github.com/mkoval/hybridrag/internal/extract"
	"github.com/mkoval/hybridrag/internal/graph"
	"github.com/mkoval/hybridrag/internal/identity"
	"github.com/mkoval/hybridrag/internal/storage"
	"github.com/mkoval/hybridrag/internal/vector"
)

// ErrPartialSync is returned (wrapped) when vector writes committed but the
// graph writes did not. The catalog records the document as partial so a
// later reconciliation can finish the job.
var ErrPartialSync = errors.New("partial sync: vector writes committed, graph writes did not")

// Document sync outcomes reported per source file.
const (
	OutcomeSynced  = "synced"
	OutcomeSkipped = "skipped"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Embedder generates embeddings for chunk text.
type Embedder interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Catalog is the document catalog the synchronizer reads and writes.
type Catalog interface {
	UpsertDocument(doc storage.Document) error
	GetDocument(sourcePath string) (storage.Document, error)
	SetStatus(sourcePath string, status string) error
	DocumentsWithStatus(status string) ([]storage.Document, error)
}

// Report summarizes what one document sync did.
type Report struct {
	SourcePath    string `json:"source_path"`
	DocID         string `json:"doc_id"`
	Outcome       string `json:"outcome"`
	ChunksWritten int    `json:"chunks_written"`
	ChunksReused  int    `json:"chunks_reused"`
	ChunksDeleted int    `json:"chunks_deleted"`
	Error         string `json:"error,omitempty"`
}

// Options tune the synchronizer. Zero values get sensible defaults.
type Options struct {
	EmbedModel  string
	Retries     int           // retry attempts per store write, default 2
	Backoff     time.Duration // base backoff between attempts, default 200ms
	Concurrency int           // concurrent embedding calls, default 4
}

// Synchronizer ingests documents into both stores.
type Synchronizer struct {
	catalog  Catalog
	vectors  vector.Store
	graph    graph.Store
	embedder Embedder
	chunker  *chunk.Chunker
	opts     Options
	logger   *slog.Logger
}

// NewSynchronizer wires a Synchronizer from its dependencies.
func NewSynchronizer(catalog Catalog, vectors vector.Store, g graph.Store, embedder Embedder, chunker *chunk.Chunker, opts Options) *Synchronizer {
	if opts.Retries <= 0 {
		opts.Retries = 2
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Synchronizer{
		catalog:  catalog,
		vectors:  vectors,
		graph:    g,
		embedder: embedder,
		chunker:  chunker,
		opts:     opts,
		logger:   slog.Default(),
	}
}

// SyncFile extracts and syncs a single file.
func (s *Synchronizer) SyncFile(ctx context.Context, path string, force bool) (Report, error) {
	doc, err := extract.File(path)
	if err != nil {
		return Report{SourcePath: path, Outcome: OutcomeFailed, Error: err.Error()},
			fmt.Errorf("extracting %s: %w", path, err)
	}
	return s.SyncDocument(ctx, doc, force)
}

// SyncDir extracts and syncs every supported file under root. Per-document
// failures are recorded in the reports and do not stop the walk.
func (s *Synchronizer) SyncDir(ctx context.Context, root string, force bool) ([]Report, error) {
	docs, err := extract.Dir(root)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", root, err)
	}

	reports := make([]Report, 0, len(docs))
	for _, doc := range docs {
		report, err := s.SyncDocument(ctx, doc, force)
		if err != nil {
			s.logger.Warn("document sync failed",
				"source_path", doc.Path, "outcome", report.Outcome, "error", err)
		}
		reports = append(reports, report)
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
	}
	return reports, nil
}

// SyncDocument runs the full sync for one extracted document: identity,
// skip-unchanged, chunking, embedding, vector write, graph write, supersede
// deletion. Unless force is set, a document whose content hash matches the
// catalog's synced record is skipped untouched.
func (s *Synchronizer) SyncDocument(ctx context.Context, doc extract.Document, force bool) (Report, error) {
	report := Report{SourcePath: doc.Path}

	text := identity.Normalize(doc.Text)
	docID := identity.DocumentID(text)
	report.DocID = docID

	prev, err := s.catalog.GetDocument(doc.Path)
	switch {
	case err == nil:
		if !force && prev.DocID == docID && prev.Status == storage.StatusSynced {
			report.Outcome = OutcomeSkipped
			report.ChunksReused = len(prev.ChunkIDs)
			s.logger.Info("document unchanged, skipping", "source_path", doc.Path, "doc_id", docID)
			return report, nil
		}
	case errors.Is(err, storage.ErrNotFound):
		// first ingestion
	default:
		return s.failed(report, fmt.Errorf("reading catalog for %s: %w", doc.Path, err))
	}

	records, reused, err := s.embedChunks(ctx, doc.Path, docID, text)
	if err != nil {
		return s.failed(report, err)
	}
	report.ChunksReused = reused
	report.ChunksWritten = len(records) - reused

	chunkIDs := make([]string, len(records))
	for i, r := range records {
		chunkIDs[i] = r.ChunkID
	}

	// Vector first. A failure here is clean: nothing durable has changed yet.
	if err := s.withRetry(ctx, "vector upsert", func() error {
		return s.vectors.Upsert(ctx, records)
	}); err != nil {
		return s.failed(report, fmt.Errorf("writing vector index for %s: %w", doc.Path, err))
	}

	// The catalog records the new manifest as partial before the graph write,
	// so a crash between the two stores is visible to reconciliation.
	entry := storage.Document{
		SourcePath: doc.Path,
		DocID:      docID,
		Title:      filepath.Base(doc.Path),
		Format:     doc.Format,
		Status:     storage.StatusPartial,
		ChunkIDs:   chunkIDs,
		IngestedAt: prev.IngestedAt,
	}
	if entry.IngestedAt.IsZero() {
		entry.IngestedAt = time.Now().UTC()
	}
	if err := s.catalog.UpsertDocument(entry); err != nil {
		return s.failed(report, fmt.Errorf("recording catalog entry for %s: %w", doc.Path, err))
	}

	if err := s.writeGraph(ctx, docID, doc.Path, entry.Title, records); err != nil {
		report.Outcome = OutcomePartial
		report.Error = err.Error()
		return report, fmt.Errorf("%w: %s: %v", ErrPartialSync, doc.Path, err)
	}

	// Supersede: chunks from the previous version that the new version no
	// longer produces are deleted from both stores.
	stale := diffIDs(prev.ChunkIDs, chunkIDs)
	if len(stale) > 0 {
		if err := s.deleteStale(ctx, stale); err != nil {
			report.Outcome = OutcomePartial
			report.Error = err.Error()
			return report, fmt.Errorf("%w: %s: %v", ErrPartialSync, doc.Path, err)
		}
		report.ChunksDeleted = len(stale)
	}

	if err := s.catalog.SetStatus(doc.Path, storage.StatusSynced); err != nil {
		return s.failed(report, fmt.Errorf("finalizing catalog status for %s: %w", doc.Path, err))
	}

	report.Outcome = OutcomeSynced
	s.logger.Info("document synced",
		"source_path", doc.Path,
		"doc_id", docID,
		"chunks_written", report.ChunksWritten,
		"chunks_reused", report.ChunksReused,
		"chunks_deleted", report.ChunksDeleted)
	return report, nil
}

// embedChunks splits the text and produces one vector record per chunk.
// Chunks whose identifier already has an embedding in the index reuse it
// instead of calling the embedder again.
func (s *Synchronizer) embedChunks(ctx context.Context, sourcePath, docID, text string) ([]vector.Record, int, error) {
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, 0, fmt.Errorf("document %s has no content", sourcePath)
	}

	now := time.Now().UTC()
	records := make([]vector.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, ck := range chunks {
		ids[i] = identity.ChunkID(sourcePath, ck.Index, ck.Text)
		records[i] = vector.Record{
			ChunkID:    ids[i],
			DocID:      docID,
			SourcePath: sourcePath,
			Seq:        ck.Index,
			Text:       ck.Text,
			CreatedAt:  now,
		}
	}

	existing, err := s.vectors.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("checking existing embeddings: %w", err)
	}
	known := make(map[string][]float32, len(existing))
	for _, r := range existing {
		known[r.ChunkID] = r.Embedding
	}

	reused := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range records {
		if emb, ok := known[records[i].ChunkID]; ok && len(emb) > 0 {
			records[i].Embedding = emb
			reused++
			continue
		}
		g.Go(func() error {
			emb, err := s.embedder.Embed(gctx, s.opts.EmbedModel, records[i].Text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d of %s: %w", records[i].Seq, sourcePath, err)
			}
			records[i].Embedding = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return records, reused, nil
}

func (s *Synchronizer) writeGraph(ctx context.Context, docID, sourcePath, title string, records []vector.Record) error {
	if err := s.withRetry(ctx, "graph document upsert", func() error {
		return s.graph.UpsertDocument(ctx, graph.Document{DocID: docID, Title: title, SourcePath: sourcePath})
	}); err != nil {
		return err
	}

	chunks := make([]graph.Chunk, len(records))
	for i, r := range records {
		chunks[i] = graph.Chunk{ChunkID: r.ChunkID, Seq: r.Seq, Text: r.Text}
	}
	return s.withRetry(ctx, "graph chunk upsert", func() error {
		return s.graph.UpsertChunks(ctx, docID, chunks)
	})
}

func (s *Synchronizer) deleteStale(ctx context.Context, stale []string) error {
	if err := s.withRetry(ctx, "vector delete", func() error {
		return s.vectors.Delete(ctx, stale)
	}); err != nil {
		return fmt.Errorf("deleting superseded chunks from vector index: %w", err)
	}
	if err := s.withRetry(ctx, "graph delete", func() error {
		return s.graph.DeleteChunks(ctx, stale)
	}); err != nil {
		return fmt.Errorf("deleting superseded chunks from graph: %w", err)
	}
	return nil
}

// failed marks the catalog record failed without touching its manifest. The
// previous version's chunk ids must survive a failed attempt so a later
// successful sync can still diff away the superseded chunks.
func (s *Synchronizer) failed(report Report, err error) (Report, error) {
	report.Outcome = OutcomeFailed
	report.Error = err.Error()
	stErr := s.catalog.SetStatus(report.SourcePath, storage.StatusFailed)
	if errors.Is(stErr, storage.ErrNotFound) {
		stErr = s.catalog.UpsertDocument(storage.Document{
			SourcePath: report.SourcePath,
			DocID:      report.DocID,
			Title:      filepath.Base(report.SourcePath),
			Status:     storage.StatusFailed,
			IngestedAt: time.Now().UTC(),
		})
	}
	if stErr != nil {
		s.logger.Error("failed to record failed status", "source_path", report.SourcePath, "error", stErr)
	}
	return report, err
}

// withRetry runs fn up to 1+Retries times with linear backoff. Store
// unavailability is usually transient (restart, brief network blip), so a
// couple of quick retries avoid flagging a document partial unnecessarily.
func (s *Synchronizer) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.opts.Backoff * time.Duration(attempt)):
			}
			s.logger.Warn("retrying store write", "op", op, "attempt", attempt, "error", err)
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// diffIDs returns the elements of old that are absent from current.
func diffIDs(old, current []string) []string {
	live := make(map[string]struct{}, len(current))
	for _, id := range current {
		live[id] = struct{}{}
	}
	var stale []string
	for _, id := range old {
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}
