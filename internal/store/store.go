// Package store keeps a history of fill runs in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// FieldOutcome is the recorded result of one mapped field.
type FieldOutcome struct {
	PayloadKey string
	Panel      string
	Type       string
	Status     string
	Detail     string
	Error      string
	Duration   time.Duration
}

// Run is one recorded fill run.
type Run struct {
	ID         string
	Headline   string
	Success    bool
	URL        string
	Message    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Fields     []FieldOutcome
}

// Store provides the PostgreSQL run history.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Open connects a pool to databaseURL and wraps it in a Store. The returned
// close function releases the pool.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fill_runs (
    id          UUID PRIMARY KEY,
    headline    TEXT NOT NULL,
    success     BOOLEAN NOT NULL,
    url         TEXT,
    message     TEXT NOT NULL,
    error       TEXT,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS fill_fields (
    run_id      UUID NOT NULL REFERENCES fill_runs(id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,
    payload_key TEXT NOT NULL,
    panel       TEXT,
    type        TEXT NOT NULL,
    status      TEXT NOT NULL,
    detail      TEXT,
    error       TEXT,
    duration_ms BIGINT NOT NULL,
    PRIMARY KEY (run_id, seq)
);`

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const insertRunSQL = `
INSERT INTO fill_runs (id, headline, success, url, message, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

var fieldColumns = []string{"run_id", "seq", "payload_key", "panel", "type", "status", "detail", "error", "duration_ms"}

// RecordRun stores a run and its field outcomes in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, insertRunSQL,
		run.ID, run.Headline, run.Success, nullable(run.URL), run.Message, nullable(run.Error),
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if len(run.Fields) > 0 {
		rows := make([][]any, len(run.Fields))
		for i, f := range run.Fields {
			rows[i] = []any{
				run.ID, i, f.PayloadKey, nullable(f.Panel), f.Type, f.Status,
				nullable(f.Detail), nullable(f.Error), f.Duration.Milliseconds(),
			}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"fill_fields"}, fieldColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy field outcomes: %w", err)
		}
		if int(n) != len(run.Fields) {
			return fmt.Errorf("mismatch in copied field count: expected %d, got %d", len(run.Fields), n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run recorded", zap.String("run_id", run.ID), zap.Int("fields", len(run.Fields)))
	return nil
}

// RecentRuns returns the latest runs, newest first, without field outcomes.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
        SELECT id, headline, success, COALESCE(url, ''), message, COALESCE(error, ''), started_at, finished_at
        FROM fill_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Headline, &r.Success, &r.URL, &r.Message, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
