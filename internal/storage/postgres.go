package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"metaphorlab/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	source     TEXT NOT NULL,
	origin     TEXT NOT NULL DEFAULT '',
	results    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS analyses_created_at_idx ON analyses (created_at DESC);
`

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// Save stores a. Results go in as JSONB; their stats are recomputed on read.
func (p *Postgres) Save(ctx context.Context, a domain.Analysis) error {
	results, err := json.Marshal(a.Results)
	if err != nil {
		return fmt.Errorf("storage: encode results: %w", err)
	}

	query := `
		INSERT INTO analyses (id, text, source, origin, results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = p.db.ExecContext(ctx, query,
		a.ID,
		a.Text,
		a.Source,
		a.Origin,
		results,
		a.CreatedAt,
	)

	return err
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*domain.Analysis, error) {
	query := `
		SELECT id, text, source, origin, results, created_at
		FROM analyses WHERE id = $1
	`

	a, err := scanAnalysis(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (p *Postgres) FindAll(ctx context.Context, limit, offset int) ([]domain.Analysis, error) {
	query := `
		SELECT id, text, source, origin, results, created_at
		FROM analyses ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
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

func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM analyses WHERE id = $1)`

	var exists bool
	err := p.db.QueryRowContext(ctx, query, id).Scan(&exists)
	return exists, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*domain.Analysis, error) {
	var (
		a       domain.Analysis
		results []byte
	)
	if err := row.Scan(&a.ID, &a.Text, &a.Source, &a.Origin, &results, &a.CreatedAt); err != nil {
		return nil, err
	}

	a.Results = &domain.ResultSet{}
	if err := json.Unmarshal(results, a.Results); err != nil {
		return nil, fmt.Errorf("storage: decode results for %s: %w", a.ID, err)
	}
	return &a, nil
}
