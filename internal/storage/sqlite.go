package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"metaphorlab/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	source     TEXT NOT NULL,
	origin     TEXT NOT NULL DEFAULT '',
	results    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS analyses_created_at_idx ON analyses (created_at DESC);
`

// SQLite is a single-file archive for deployments without Postgres.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens path and creates the schema. ":memory:" gives a private
// in-memory archive.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One connection: writers serialize anyway and :memory: is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Save(ctx context.Context, a domain.Analysis) error {
	results, err := json.Marshal(a.Results)
	if err != nil {
		return fmt.Errorf("storage: encode results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO analyses (id, text, source, origin, results, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Text, a.Source, a.Origin, string(results), a.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLite) FindByID(ctx context.Context, id string) (*domain.Analysis, error) {
	a, err := scanAnalysis(s.db.QueryRowContext(ctx, `
		SELECT id, text, source, origin, results, created_at
		FROM analyses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *SQLite) FindAll(ctx context.Context, limit, offset int) ([]domain.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, source, origin, results, created_at
		FROM analyses ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := []domain.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, *a)
	}
	return analyses, rows.Err()
}

func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM analyses WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}
