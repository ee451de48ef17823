package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS agent_runs (
    id           TEXT PRIMARY KEY,
    agent        TEXT NOT NULL,
    goal         TEXT NOT NULL,
    status       TEXT NOT NULL,
    final_answer TEXT NOT NULL DEFAULT '',
    score        DOUBLE PRECISION NOT NULL DEFAULT 0,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL,
    details      JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS agent_run_steps (
    run_id      TEXT NOT NULL REFERENCES agent_runs(id) ON DELETE CASCADE,
    idx         INTEGER NOT NULL,
    action      TEXT NOT NULL,
    observation TEXT NOT NULL,
    score       DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, idx)
);
CREATE INDEX IF NOT EXISTS agent_runs_agent_started ON agent_runs (agent, started_at DESC);
`

const (
	sqlUpsertRun = `
        INSERT INTO agent_runs (id, agent, goal, status, final_answer, score, started_at, finished_at, details)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            final_answer = EXCLUDED.final_answer,
            score = EXCLUDED.score,
            finished_at = EXCLUDED.finished_at,
            details = EXCLUDED.details;
    `
	sqlDeleteSteps = `DELETE FROM agent_run_steps WHERE run_id = $1;`
	sqlSelectRun   = `
        SELECT id, agent, goal, status, final_answer, score, started_at, finished_at, details
        FROM agent_runs
        WHERE id = $1;
    `
	sqlSelectSteps = `
        SELECT idx, action, observation, score
        FROM agent_run_steps
        WHERE run_id = $1
        ORDER BY idx ASC;
    `
	sqlListRuns = `
        SELECT id, agent, goal, status, final_answer, score, started_at, finished_at, details
        FROM agent_runs
        WHERE ($1 = '' OR agent = $1)
        ORDER BY started_at DESC
        LIMIT $2;
    `
)

var stepColumns = []string{"run_id", "idx", "action", "observation", "score"}

// Store persists agent runs in PostgreSQL.
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

// Connect opens a pgx pool for url, creates the tables if needed and returns
// the store together with the pool so the caller can close it.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// EnsureSchema creates the run tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun upserts run and replaces its steps in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *schemas.AgentRun) error {
	if run.ID == "" {
		return errors.New("run has no id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	details := run.Details
	if len(details) == 0 || string(details) == "null" {
		details = json.RawMessage("{}")
	}
	if _, err := tx.Exec(ctx, sqlUpsertRun,
		run.ID, run.Agent, run.Goal, string(run.Status), run.FinalAnswer, run.Score,
		run.StartedAt.UTC(), run.FinishedAt.UTC(), details,
	); err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec(ctx, sqlDeleteSteps, run.ID); err != nil {
		return fmt.Errorf("failed to clear steps of run %s: %w", run.ID, err)
	}

	if len(run.Steps) > 0 {
		rows := make([][]any, len(run.Steps))
		for i, st := range run.Steps {
			rows[i] = []any{run.ID, st.Index, st.Action, st.Observation, st.Score}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"agent_run_steps"}, stepColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy steps: %w", err)
		}
		if int(n) != len(run.Steps) {
			return fmt.Errorf("mismatch in copied steps count: expected %d, got %d", len(run.Steps), n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Saved run", zap.String("id", run.ID), zap.String("agent", run.Agent), zap.Int("steps", len(run.Steps)))
	return nil
}

// GetRun loads one run with its steps.
func (s *Store) GetRun(ctx context.Context, id string) (*schemas.AgentRun, error) {
	runs, err := s.queryRuns(ctx, sqlSelectRun, id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	run := runs[0]

	rows, err := s.pool.Query(ctx, sqlSelectSteps, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st schemas.RunStep
		if err := rows.Scan(&st.Index, &st.Action, &st.Observation, &st.Score); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		run.Steps = append(run.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return &run, nil
}

// ListRuns returns the newest runs first, optionally for one agent. Steps are not loaded.
func (s *Store) ListRuns(ctx context.Context, agent string, limit int) ([]schemas.AgentRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(ctx, sqlListRuns, agent, limit)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]schemas.AgentRun, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.AgentRun
	for rows.Next() {
		var r schemas.AgentRun
		var status string
		var details []byte
		if err := rows.Scan(&r.ID, &r.Agent, &r.Goal, &status, &r.FinalAnswer, &r.Score, &r.StartedAt, &r.FinishedAt, &details); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Status = schemas.RunStatus(status)
		if len(details) > 0 {
			r.Details = json.RawMessage(details)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
