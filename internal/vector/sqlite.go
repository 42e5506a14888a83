package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
)

// SQLiteIndex persists records in a local SQLite file and searches by brute force.
// It lets a single process keep its index across restarts without a vector server.
type SQLiteIndex struct {
	db *sql.DB

	mu    sync.Mutex
	specs map[string]collectionSpec
}

type collectionSpec struct {
	dimension int
	metric    Metric
}

// NewSQLiteIndex opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteIndex{db: db, specs: make(map[string]collectionSpec)}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		metric TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		source TEXT NOT NULL,
		chapter TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		vector BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id),
		FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_source_chunk ON records(collection, source, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// Backend returns "sqlite".
func (s *SQLiteIndex) Backend() string { return "sqlite" }

// EnsureCollection inserts the collection row if it does not exist.
func (s *SQLiteIndex) EnsureCollection(ctx context.Context, name string, dimension int, metric Metric) error {
	if dimension <= 0 {
		return apperr.Validationf("vector", "dimension must be positive, got %d", dimension)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension, metric) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`, name, dimension, string(metric))
	if err != nil {
		return fmt.Errorf("vector: ensure collection %s: %w", name, err)
	}
	return nil
}

// spec returns the stored dimension and metric of collection.
func (s *SQLiteIndex) spec(ctx context.Context, name string) (collectionSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp, ok := s.specs[name]; ok {
		return sp, nil
	}
	var sp collectionSpec
	var metric string
	err := s.db.QueryRowContext(ctx,
		`SELECT dimension, metric FROM collections WHERE name = ?`, name,
	).Scan(&sp.dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return sp, apperr.New(apperr.KindProvider, "vector", fmt.Errorf("%w: %s", apperr.ErrCollectionNotExists, name))
	}
	if err != nil {
		return sp, fmt.Errorf("vector: read collection %s: %w", name, err)
	}
	sp.metric = Metric(metric)
	s.specs[name] = sp
	return sp, nil
}

// Upsert writes records in one transaction, replacing rows with the same id.
func (s *SQLiteIndex) Upsert(ctx context.Context, collection string, records []models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	sp, err := s.spec(ctx, collection)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Vector) != sp.dimension {
			return apperr.DimensionMismatch("vector upsert", len(r.Vector), sp.dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vector: begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (collection, id, source, chapter, chunk_index, text, vector, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(collection, id) DO UPDATE SET
			source = excluded.source,
			chapter = excluded.chapter,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			vector = excluded.vector,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("vector: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		p := r.Payload
		if _, err := stmt.ExecContext(ctx, collection, r.ID, p.Source, p.Chapter, p.ChunkIndex, p.Text,
			float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("vector: upsert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vector: commit upsert: %w", err)
	}
	return nil
}

// Search scores every record of collection against query. Ties keep insertion order.
func (s *SQLiteIndex) Search(ctx context.Context, collection string, query []float32, limit int) ([]models.Hit, error) {
	if limit <= 0 {
		return nil, apperr.Validation("vector search", apperr.ErrInvalidLimit)
	}
	sp, err := s.spec(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(query) != sp.dimension {
		return nil, apperr.DimensionMismatch("vector search", len(query), sp.dimension)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, chapter, chunk_index, text, vector
		 FROM records WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, fmt.Errorf("vector: search: %w", err)
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var h models.Hit
		var blob []byte
		if err := rows.Scan(&h.ID, &h.Payload.Source, &h.Payload.Chapter, &h.Payload.ChunkIndex,
			&h.Payload.Text, &blob); err != nil {
			return nil, fmt.Errorf("vector: scan record: %w", err)
		}
		h.Score = Score(sp.metric, query, bytesToFloat32Slice(blob))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector: search rows: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteFrom removes source's records whose chunk_index >= fromIndex.
func (s *SQLiteIndex) DeleteFrom(ctx context.Context, collection, source string, fromIndex int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND source = ? AND chunk_index >= ?`,
		collection, source, fromIndex)
	if err != nil {
		return fmt.Errorf("vector: delete %s from %d: %w", source, fromIndex, err)
	}
	return nil
}

// Count returns the number of records in collection.
func (s *SQLiteIndex) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.spec(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("vector: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
