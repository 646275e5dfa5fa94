package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite database holding the ingestion catalog and the
// chunk_vectors table the vector index operates on.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "hybridrag.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent ingestion.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle so the vector index can share the same
// database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies any embedded SQL migration files that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// parseMigrationVersion extracts the numeric prefix from "0001_init.sql".
func parseMigrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s: want NNNN_name.sql", name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration %s: bad version prefix: %w", name, err)
	}
	return version, nil
}

// UpsertDocument writes a catalog record, replacing any prior record for the
// same source path.
func (s *Store) UpsertDocument(doc Document) error {
	chunkIDs, err := json.Marshal(doc.ChunkIDs)
	if err != nil {
		return fmt.Errorf("marshaling chunk ids: %w", err)
	}

	now := time.Now().UTC()
	ingestedAt := doc.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = now
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err = s.db.Exec(`
		INSERT INTO documents (source_path, doc_id, title, format, status, chunk_ids, ingested_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			doc_id = excluded.doc_id,
			title = excluded.title,
			format = excluded.format,
			status = excluded.status,
			chunk_ids = excluded.chunk_ids,
			updated_at = excluded.updated_at`,
		doc.SourcePath, doc.DocID, doc.Title, doc.Format, doc.Status,
		string(chunkIDs), ingestedAt.Format(time.RFC3339), updatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.SourcePath, err)
	}
	return nil
}

// GetDocument returns the catalog record for a source path.
func (s *Store) GetDocument(sourcePath string) (Document, error) {
	row := s.db.QueryRow(`
		SELECT source_path, doc_id, title, format, status, chunk_ids, ingested_at, updated_at
		FROM documents WHERE source_path = ?`, sourcePath)
	return scanDocument(row)
}

// SetStatus updates only the sync status of a document.
func (s *Store) SetStatus(sourcePath, status string) error {
	res, err := s.db.Exec(`UPDATE documents SET status = ?, updated_at = ? WHERE source_path = ?`,
		status, time.Now().UTC().Format(time.RFC3339), sourcePath)
	if err != nil {
		return fmt.Errorf("updating status for %s: %w", sourcePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns all catalog records ordered by source path.
func (s *Store) ListDocuments() ([]Document, error) {
	return s.queryDocuments(`
		SELECT source_path, doc_id, title, format, status, chunk_ids, ingested_at, updated_at
		FROM documents ORDER BY source_path ASC`)
}

// DocumentsWithStatus returns the catalog records in the given status,
// ordered by source path. The reconciliation pass uses this to find
// partially synced documents.
func (s *Store) DocumentsWithStatus(status string) ([]Document, error) {
	return s.queryDocuments(`
		SELECT source_path, doc_id, title, format, status, chunk_ids, ingested_at, updated_at
		FROM documents WHERE status = ? ORDER BY source_path ASC`, status)
}

func (s *Store) queryDocuments(query string, args ...any) ([]Document, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var chunkIDs, ingestedAt, updatedAt string
	err := row.Scan(&doc.SourcePath, &doc.DocID, &doc.Title, &doc.Format, &doc.Status, &chunkIDs, &ingestedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("scanning document: %w", err)
	}

	if err := json.Unmarshal([]byte(chunkIDs), &doc.ChunkIDs); err != nil {
		return Document{}, fmt.Errorf("parsing chunk ids for %s: %w", doc.SourcePath, err)
	}
	if doc.IngestedAt, err = time.Parse(time.RFC3339, ingestedAt); err != nil {
		return Document{}, fmt.Errorf("parsing ingested_at for %s: %w", doc.SourcePath, err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Document{}, fmt.Errorf("parsing updated_at for %s: %w", doc.SourcePath, err)
	}
	return doc, nil
}
