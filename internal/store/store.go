// Package store provides the SQLite storage layer for recall.
//
// All data lives in a single SQLite database file: imported memory records,
// their embedding vectors, and the most recent clustering result with its
// fingerprint. The analytical engines never touch the store; the CLI loads
// a snapshot, runs them, and writes results back.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/recall/internal/record"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.recall/recall.db"

// Config holds configuration for NewStore.
type Config struct {
	DBPath string
}

// Store defines the persistence interface.
type Store interface {
	// Records
	AddRecord(ctx context.Context, r record.Record) error
	AddRecordBatch(ctx context.Context, records []record.Record) error
	GetRecord(ctx context.Context, id string) (*record.Record, error)
	ListRecords(ctx context.Context) ([]record.Record, error)
	CountRecords(ctx context.Context) (int, error)

	// Embeddings
	AddEmbedding(ctx context.Context, recordID string, vector []float32) error
	GetEmbedding(ctx context.Context, recordID string) ([]float32, error)
	ListEmbeddings(ctx context.Context) (map[string][]float32, error)
	CountEmbeddings(ctx context.Context) (int, error)

	// Clustering
	SaveClustering(ctx context.Context, fingerprint string, clusters []StoredCluster, assignments map[string]int) error
	LoadClustering(ctx context.Context) (*StoredClustering, error)
	SetClusterLabel(ctx context.Context, clusterID int, label string) error

	Close() error
}

// StoredCluster is the persisted form of one cluster.
type StoredCluster struct {
	ID              int
	DominantEmotion string
	Label           string
	MemberCount     int
}

// StoredClustering is the persisted clustering with its fingerprint.
type StoredClustering struct {
	Fingerprint string
	SavedAt     time.Time
	Clusters    []StoredCluster
	Assignments map[string]int
}

// SQLiteStore implements Store over a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at cfg.DBPath and applies
// the schema. ":memory:" gives an ephemeral store for tests.
func NewStore(cfg Config) (Store, error) {
	path := cfg.DBPath
	if path == "" {
		path = DefaultDBPath
	}
	path = expandUserPath(path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// modernc sqlite is not safe for concurrent writers on one connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		key         TEXT NOT NULL DEFAULT '',
		text        TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL DEFAULT '',
		object      TEXT NOT NULL DEFAULT 'Unknown',
		category    TEXT NOT NULL DEFAULT 'Unknown',
		emotion     TEXT NOT NULL DEFAULT 'Unknown',
		imported_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		record_id  TEXT PRIMARY KEY REFERENCES records(id) ON DELETE CASCADE,
		vector     BLOB NOT NULL,
		dimensions INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clusterings (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		fingerprint TEXT NOT NULL,
		saved_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clusters (
		cluster_id       INTEGER PRIMARY KEY,
		dominant_emotion TEXT NOT NULL DEFAULT 'Unknown',
		label            TEXT NOT NULL DEFAULT '',
		member_count     INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS cluster_members (
		record_id  TEXT PRIMARY KEY,
		cluster_id INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cluster_members_cluster ON cluster_members(cluster_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddRecord inserts or replaces a single record.
func (s *SQLiteStore) AddRecord(ctx context.Context, r record.Record) error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, key, text, created_at, object, category, emotion)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   key = excluded.key, text = excluded.text, created_at = excluded.created_at,
		   object = excluded.object, category = excluded.category, emotion = excluded.emotion`,
		r.ID, r.Key, r.Text, r.CreatedAt.UTC().Format(time.RFC3339), r.Object, r.Category, r.Emotion,
	)
	if err != nil {
		return fmt.Errorf("storing record %q: %w", r.ID, err)
	}
	return nil
}

// AddRecordBatch inserts records inside one transaction.
func (s *SQLiteStore) AddRecordBatch(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, key, text, created_at, object, category, emotion)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   key = excluded.key, text = excluded.text, created_at = excluded.created_at,
		   object = excluded.object, category = excluded.category, emotion = excluded.emotion`,
	)
	if err != nil {
		return fmt.Errorf("preparing batch insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record id is required")
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Key, r.Text, r.CreatedAt.UTC().Format(time.RFC3339), r.Object, r.Category, r.Emotion,
		); err != nil {
			return fmt.Errorf("storing record %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// GetRecord fetches one record, nil if absent.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*record.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, text, created_at, object, category, emotion FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %q: %w", id, err)
	}
	return &r, nil
}

// ListRecords returns all records ordered by created_at then id, which is
// the canonical ordering the fingerprint is computed over.
func (s *SQLiteStore) ListRecords(ctx context.Context) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, text, created_at, object, category, emotion
		 FROM records ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountRecords returns the total record count.
func (s *SQLiteStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// GetDB exposes the underlying handle for diagnostics.
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record.Record, error) {
	var r record.Record
	var createdAt string
	if err := row.Scan(&r.ID, &r.Key, &r.Text, &createdAt, &r.Object, &r.Category, &r.Emotion); err != nil {
		return record.Record{}, err
	}
	r.CreatedAt = record.ParseCreatedAt(createdAt)
	return r, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
