package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"handbook-agent/internal/domain"
	"handbook-agent/internal/vectorstore/memory"
)

// Storage persists chunks and their vectors in a SQLite database. Search is
// brute force over all rows.
type Storage struct {
	db *sql.DB

	mu        sync.RWMutex
	dimension int
}

func NewStorage(dsn string) (*Storage, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: open")
	}
	db.SetMaxOpenConns(1)
	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	dim, err := s.storedDimension(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.dimension = dim
	return s, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT NOT NULL PRIMARY KEY,
			document_id TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			idx INTEGER NOT NULL,
			vector_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chunks_by_idx ON chunks(idx);`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT NOT NULL PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite store: migrate")
		}
	}
	return nil
}

// Init records the vector dimension and drops previously stored chunks.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("sqlite store: invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO store_meta(key, value) VALUES('dimension', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(dimension),
	); err != nil {
		return errors.Wrap(err, "sqlite store: save dimension")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return errors.Wrap(err, "sqlite store: reset chunks")
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("sqlite store: chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.Errorf("sqlite store: vector dimension %d, want %d", len(v), s.dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks(chunk_id, document_id, source, text, idx, vector_json)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET
		   document_id = excluded.document_id,
		   source = excluded.source,
		   text = excluded.text,
		   idx = excluded.idx,
		   vector_json = excluded.vector_json`)
	if err != nil {
		return errors.Wrap(err, "sqlite store: prepare upsert")
	}
	defer func() { _ = stmt.Close() }()

	for i, ch := range chunks {
		raw, err := json.Marshal(vectors[i])
		if err != nil {
			return errors.Wrap(err, "sqlite store: encode vector")
		}
		if _, err := stmt.ExecContext(ctx, ch.ChunkID, ch.DocumentID, ch.Source, ch.Text, ch.Index, string(raw)); err != nil {
			return errors.Wrapf(err, "sqlite store: upsert chunk %s", ch.ChunkID)
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite store: commit")
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, errors.Errorf("sqlite store: query dimension %d, want %d", len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, source, text, idx, vector_json FROM chunks ORDER BY idx ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: query chunks")
	}
	defer func() { _ = rows.Close() }()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			ch  domain.Chunk
			raw string
		)
		if err := rows.Scan(&ch.ChunkID, &ch.DocumentID, &ch.Source, &ch.Text, &ch.Index, &raw); err != nil {
			return nil, errors.Wrap(err, "sqlite store: scan chunk")
		}
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, errors.Wrapf(err, "sqlite store: decode vector for %s", ch.ChunkID)
		}
		results = append(results, domain.SearchResult{Chunk: ch, Score: memory.Dot(vec, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite store: iterate chunks")
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return errors.Wrap(err, "sqlite store: clear")
	}
	return nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "sqlite store: count")
	}
	return n, nil
}

// storedDimension returns the persisted vector dimension, or zero if Init was
// never called against this database.
func (s *Storage) storedDimension(ctx context.Context) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'dimension'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "sqlite store: read dimension")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite store: parse dimension")
	}
	return n, nil
}
