package vector

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Compile-time check that SQLiteIndex implements Store.
var _ Store = (*SQLiteIndex)(nil)

// SQLiteIndex provides vector storage and brute-force cosine similarity
// search backed by SQLite. Rowid order doubles as insertion order, which is
// what makes the similarity tie-break deterministic.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex wraps an existing *sql.DB for vector operations.
// The chunk_vectors table must already exist (created via migrations).
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// Upsert inserts or replaces records by chunk_id. An existing row keeps its
// rowid so re-upserting never reorders tie-breaks.
func (s *SQLiteIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning upsert transaction: %v", ErrUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_vectors (chunk_id, doc_id, source_path, seq, text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			doc_id = excluded.doc_id,
			source_path = excluded.source_path,
			seq = excluded.seq,
			text = excluded.text,
			embedding = excluded.embedding`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: preparing upsert statement: %v", ErrUnavailable, err)
	}
	defer stmt.Close()

	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		blob := encodeFloat32s(r.Embedding)
		if _, err := stmt.ExecContext(ctx, r.ChunkID, r.DocID, r.SourcePath, r.Seq, r.Text, blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: upserting record %s: %v", ErrUnavailable, r.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing upsert: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes records by chunk_id. Absent identifiers are a no-op.
func (s *SQLiteIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	query := `DELETE FROM chunk_vectors WHERE chunk_id IN (?` + strings.Repeat(",?", len(chunkIDs)-1) + `)`
	if _, err := s.db.ExecContext(ctx, query, idArgs(chunkIDs)...); err != nil {
		return fmt.Errorf("%w: deleting records: %v", ErrUnavailable, err)
	}
	return nil
}

// candidate holds only what the scan phase of Search needs. Full record
// details are fetched afterwards for top-K winners only.
type candidate struct {
	ID    string
	Rowid int64
	Score float32
}

// better reports whether a should rank above b: higher score first, then
// older insertion (smaller rowid).
func better(a, b candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Rowid < b.Rowid
}

// Search performs a brute-force cosine similarity scan, returning the top-K
// most similar records ordered by score descending, insertion order ascending
// on ties.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only rowid + chunk_id + embedding.
	rows, err := s.db.QueryContext(ctx, `SELECT rowid, chunk_id, embedding FROM chunk_vectors`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	h := &candidateHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var c candidate
		var blob []byte
		if err := rows.Scan(&c.Rowid, &c.ID, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrUnavailable, err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", c.ID, err)
		}
		c.Score = cosine(vector, buf, queryNorm)

		if h.Len() < topK {
			heap.Push(h, c)
		} else if better(c, (*h)[0]) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", ErrUnavailable, err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Drain the min-heap into rank order, best first.
	ranked := make([]candidate, h.Len())
	for i := len(ranked) - 1; i >= 0; i-- {
		ranked[i] = heap.Pop(h).(candidate)
	}

	// Phase 2: fetch full records only for the winners.
	ids := make([]string, len(ranked))
	scores := make(map[string]float32, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
		scores[c.ID] = c.Score
	}

	records, err := s.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		byID[r.ChunkID] = r
	}

	results := make([]ScoredRecord, 0, len(ranked))
	for _, c := range ranked {
		r, ok := byID[c.ID]
		if !ok {
			continue
		}
		results = append(results, ScoredRecord{Record: r, Score: scores[c.ID]})
	}
	return results, nil
}

// GetByIDs returns the records matching the given chunk identifiers.
func (s *SQLiteIndex) GetByIDs(ctx context.Context, chunkIDs []string) ([]Record, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	query := `SELECT chunk_id, doc_id, source_path, seq, text, embedding, created_at
		FROM chunk_vectors WHERE chunk_id IN (?` + strings.Repeat(",?", len(chunkIDs)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, idArgs(chunkIDs)...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying by IDs: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var blob []byte
		var createdAt string
		if err := rows.Scan(&r.ChunkID, &r.DocID, &r.SourcePath, &r.Seq, &r.Text, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scanning record: %v", ErrUnavailable, err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ChunkID, err)
		}
		r.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", r.ChunkID, err)
		}
		r.CreatedAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}

// IDs returns every live chunk identifier, in insertion order.
func (s *SQLiteIndex) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunk_vectors ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing chunk ids: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk id: %v", ErrUnavailable, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of live records.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_vectors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting records: %v", ErrUnavailable, err)
	}
	return count, nil
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is precomputed.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// candidateHeap is a min-heap keeping the current top-K candidates; the root
// is the worst of them (lowest score, newest insertion on ties).
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
