package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

type Store struct {
	DB *sql.DB
}

// Run is one persisted research run. Result holds the full response document.
type Run struct {
	ID          string          `json:"id"`
	Query       string          `json:"query"`
	Answer      string          `json:"answer"`
	Model       string          `json:"model"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	SourceCount int             `json:"source_count"`
	Duration    time.Duration   `json:"duration"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.Result == nil {
		run.Result = json.RawMessage(`{}`)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO research_runs (id, query, answer, model, error, result, source_count, duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Query, run.Answer, run.Model, run.Error, []byte(run.Result),
		run.SourceCount, run.Duration.Milliseconds(), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		run    Run
		result []byte
		durMS  int64
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, query, answer, model, error, result, source_count, duration_ms, created_at
FROM research_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.Query, &run.Answer, &run.Model, &run.Error, &result, &run.SourceCount, &durMS, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Result = json.RawMessage(result)
	run.Duration = time.Duration(durMS) * time.Millisecond
	return run, nil
}

// ListRuns returns runs newest first, without their result documents.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, query, answer, model, error, source_count, duration_ms, created_at
FROM research_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run   Run
			durMS int64
		)
		if err := rows.Scan(&run.ID, &run.Query, &run.Answer, &run.Model, &run.Error, &run.SourceCount, &durMS, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, run)
	}
	return out, rows.Err()
}

// LatestRunTime reports when query last ran; ok is false if it never did.
func (s *Store) LatestRunTime(ctx context.Context, query string) (time.Time, bool, error) {
	var last sql.NullTime
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(created_at) FROM research_runs WHERE lower(query) = lower($1)`, query).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest run: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time, true, nil
}
