package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Compile-time check that Neo4jStore implements Store.
var _ Store = (*Neo4jStore)(nil)

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore implements Store against a Neo4j server.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Config) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrUnavailable, cfg.URI, err)
	}
	return &Neo4jStore{driver: driver, database: cfg.Database}, nil
}

// Close closes the Neo4j connection.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// EnsureSchema creates uniqueness constraints for deterministic MERGEs.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	constraints := []string{
		`CREATE CONSTRAINT doc_id IF NOT EXISTS FOR (d:Document) REQUIRE d.doc_id IS UNIQUE`,
		`CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.chunk_id IS UNIQUE`,
	}
	for _, cypher := range constraints {
		if _, err := session.Run(ctx, cypher, nil); err != nil {
			return fmt.Errorf("%w: creating constraint: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// UpsertDocument MERGEs a document node by doc_id.
func (s *Neo4jStore) UpsertDocument(ctx context.Context, doc Document) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (d:Document {doc_id: $doc_id})
			SET d.title = $title,
			    d.source_path = $source_path`
		_, err := tx.Run(ctx, query, map[string]any{
			"doc_id":      doc.DocID,
			"title":       doc.Title,
			"source_path": doc.SourcePath,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("%w: upserting document %s: %v", ErrUnavailable, doc.DocID, err)
	}
	return nil
}

// UpsertChunks MERGEs chunk nodes, HAS_CHUNK ownership edges, and NEXT_CHUNK
// ordering edges in a single write transaction.
func (s *Neo4jStore) UpsertChunks(ctx context.Context, docID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		rows[i] = map[string]any{"chunk_id": c.ChunkID, "seq": c.Seq, "text": c.Text}
	}
	pairs := make([]map[string]any, 0, len(chunks)-1)
	for i := 1; i < len(chunks); i++ {
		pairs = append(pairs, map[string]any{
			"prev": chunks[i-1].ChunkID,
			"next": chunks[i].ChunkID,
		})
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		upsert := `
			MATCH (d:Document {doc_id: $doc_id})
			UNWIND $chunks AS ch
			MERGE (c:Chunk {chunk_id: ch.chunk_id})
			SET c.text = ch.text,
			    c.seq = ch.seq
			MERGE (d)-[:HAS_CHUNK]->(c)`
		if _, err := tx.Run(ctx, upsert, map[string]any{"doc_id": docID, "chunks": rows}); err != nil {
			return nil, err
		}

		if len(pairs) > 0 {
			link := `
				UNWIND $pairs AS p
				MATCH (a:Chunk {chunk_id: p.prev})
				MATCH (b:Chunk {chunk_id: p.next})
				MERGE (a)-[:NEXT_CHUNK]->(b)`
			if _, err := tx.Run(ctx, link, map[string]any{"pairs": pairs}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: upserting %d chunks for %s: %v", ErrUnavailable, len(chunks), docID, err)
	}
	return nil
}

// DeleteChunks detach-deletes chunk nodes; absent identifiers are a no-op.
func (s *Neo4jStore) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (c:Chunk)
			WHERE c.chunk_id IN $ids
			DETACH DELETE c`
		_, err := tx.Run(ctx, query, map[string]any{"ids": chunkIDs})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("%w: deleting chunks: %v", ErrUnavailable, err)
	}
	return nil
}

// Traverse walks outward from the seed chunks and returns distinct chunks
// with their minimum hop distance, seeds excluded, nearest first.
func (s *Neo4jStore) Traverse(ctx context.Context, seedIDs []string, maxHops int, relTypes []string, limit int) ([]Neighbor, error) {
	if len(seedIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	query, err := traverseQuery(maxHops, relTypes)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"seeds": seedIDs,
			"limit": limit,
		})
		if err != nil {
			return nil, err
		}
		return collectNeighbors(ctx, res, "hops")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: traversing from %d seeds: %v", ErrUnavailable, len(seedIDs), err)
	}
	return result.([]Neighbor), nil
}

// traverseQuery builds the variable-length expansion query. Relationship
// types and hop counts cannot be parameterized in Cypher, so both are
// validated before interpolation.
func traverseQuery(maxHops int, relTypes []string) (string, error) {
	if maxHops <= 0 {
		return "", fmt.Errorf("max hops must be positive, got %d", maxHops)
	}
	if len(relTypes) == 0 {
		relTypes = []string{RelHasChunk, RelNextChunk}
	}
	for _, rt := range relTypes {
		if rt != RelHasChunk && rt != RelNextChunk {
			return "", fmt.Errorf("unknown relationship type %q", rt)
		}
	}

	return fmt.Sprintf(`
		MATCH (seed:Chunk)
		WHERE seed.chunk_id IN $seeds
		MATCH path = (seed)-[:%s*1..%d]-(c:Chunk)
		WHERE NOT c.chunk_id IN $seeds
		RETURN c.chunk_id AS chunk_id, c.text AS text, min(length(path)) AS hops
		ORDER BY hops ASC, chunk_id ASC
		LIMIT $limit`, strings.Join(relTypes, "|"), maxHops), nil
}

// FindByKeywords returns chunks whose text contains any keyword,
// case-insensitively, in deterministic identifier order.
func (s *Neo4jStore) FindByKeywords(ctx context.Context, keywords []string, limit int) ([]Neighbor, error) {
	if len(keywords) == 0 || limit <= 0 {
		return nil, nil
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (c:Chunk)
			WHERE any(kw IN $keywords WHERE toLower(c.text) CONTAINS kw)
			RETURN c.chunk_id AS chunk_id, c.text AS text, 0 AS hops
			ORDER BY chunk_id ASC
			LIMIT $limit`
		res, err := tx.Run(ctx, query, map[string]any{"keywords": lowered, "limit": limit})
		if err != nil {
			return nil, err
		}
		return collectNeighbors(ctx, res, "hops")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: keyword lookup: %v", ErrUnavailable, err)
	}
	return result.([]Neighbor), nil
}

// ChunkIDs returns every chunk identifier present in the graph, sorted.
func (s *Neo4jStore) ChunkIDs(ctx context.Context) ([]string, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (c:Chunk) RETURN c.chunk_id AS chunk_id ORDER BY chunk_id ASC`, nil)
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			if v, ok := res.Record().Get("chunk_id"); ok {
				if id, ok := v.(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing chunk ids: %v", ErrUnavailable, err)
	}
	return result.([]string), nil
}

func collectNeighbors(ctx context.Context, res neo4j.ResultWithContext, hopsKey string) ([]Neighbor, error) {
	var neighbors []Neighbor
	for res.Next(ctx) {
		record := res.Record()
		n := Neighbor{}
		if v, ok := record.Get("chunk_id"); ok {
			n.ChunkID, _ = v.(string)
		}
		if v, ok := record.Get("text"); ok {
			n.Text, _ = v.(string)
		}
		if v, ok := record.Get(hopsKey); ok {
			if hops, ok := v.(int64); ok {
				n.Hops = int(hops)
			}
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, res.Err()
}
