// Package postgres stores tasks and batches in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"thumbq/internal/domain"
	"thumbq/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const Schema = `
CREATE TABLE IF NOT EXISTS batches (
    id              TEXT PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    priority        SMALLINT NOT NULL,
    total_tasks     INTEGER NOT NULL,
    succeeded_count INTEGER NOT NULL DEFAULT 0,
    failed_count    INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    started_at      TIMESTAMPTZ,
    completed_at    TIMESTAMPTZ,
    counted         TEXT[] NOT NULL DEFAULT '{}',
    completed_by    TEXT NOT NULL DEFAULT '',
    published       BOOLEAN NOT NULL DEFAULT FALSE,
    CHECK (succeeded_count + failed_count <= total_tasks)
);

ALTER TABLE batches ADD COLUMN IF NOT EXISTS counted TEXT[] NOT NULL DEFAULT '{}';
ALTER TABLE batches ADD COLUMN IF NOT EXISTS completed_by TEXT NOT NULL DEFAULT '';
ALTER TABLE batches ADD COLUMN IF NOT EXISTS published BOOLEAN NOT NULL DEFAULT FALSE;

CREATE TABLE IF NOT EXISTS tasks (
    id           TEXT PRIMARY KEY,
    batch_id     TEXT NOT NULL REFERENCES batches (id),
    owner_id     TEXT NOT NULL,
    payload      TEXT NOT NULL,
    status       TEXT NOT NULL,
    priority     SMALLINT NOT NULL,
    result       TEXT NOT NULL DEFAULT '',
    attempts     INTEGER NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS tasks_batch_id_idx ON tasks (batch_id);
`

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ ports.Store = (*Store)(nil)
	_ DB          = (*pgxpool.Pool)(nil)
)

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	return pool, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) CreateBatch(ctx context.Context, b domain.Batch, tasks []domain.Task) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const qb = `
        INSERT INTO batches
          (id, owner_id, priority, total_tasks, succeeded_count, failed_count, status, created_at, started_at, completed_at,
           counted, completed_by, published)
        VALUES
          ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := tx.Exec(ctx, qb, b.ID, b.OwnerID, int(b.Priority), b.TotalTasks, b.SucceededCount,
		b.FailedCount, string(b.Status), b.CreatedAt, b.StartedAt, b.CompletedAt,
		counted(b), b.CompletedBy, b.Published); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	rows := make([][]any, len(tasks))
	for i, t := range tasks {
		rows[i] = []any{t.ID, t.BatchID, t.OwnerID, t.Payload, string(t.Status), int(t.Priority), t.Result, t.Attempts, t.CreatedAt, t.CompletedAt}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tasks"},
		[]string{"id", "batch_id", "owner_id", "payload", "status", "priority", "result", "attempts", "created_at", "completed_at"},
		pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("insert tasks: %w", err)
	}
	return tx.Commit(ctx)
}

const taskColumns = `id, batch_id, owner_id, payload, status, priority, result, attempts, created_at, completed_at`

func (s *Store) LoadTask(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t, err
}

func (s *Store) SaveTask(ctx context.Context, t domain.Task) error {
	const q = `
        UPDATE tasks
           SET status = $2, result = $3, attempts = $4, completed_at = $5
         WHERE id = $1`
	tag, err := s.db.Exec(ctx, q, t.ID, string(t.Status), t.Result, t.Attempts, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, batchID string) ([]domain.Task, error) {
	rows, err := s.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const batchColumns = `id, owner_id, priority, total_tasks, succeeded_count, failed_count, status, created_at, started_at, completed_at,
       counted, completed_by, published`

func (s *Store) LoadBatch(ctx context.Context, id string) (domain.Batch, error) {
	b, err := scanBatch(s.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Batch{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	return b, err
}

func (s *Store) SaveBatch(ctx context.Context, b domain.Batch) error {
	return saveBatch(ctx, s.db, b)
}

// UpdateBatch holds a row lock on the batch for the duration of fn.
func (s *Store) UpdateBatch(ctx context.Context, id string, fn func(b *domain.Batch) error) (domain.Batch, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Batch{}, err
	}
	defer tx.Rollback(ctx)

	current, err := scanBatch(tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Batch{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Batch{}, err
	}

	updated := current
	if err := fn(&updated); err != nil {
		if errors.Is(err, domain.ErrNoChange) {
			return current, nil
		}
		return domain.Batch{}, err
	}
	if err := saveBatch(ctx, tx, updated); err != nil {
		return domain.Batch{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Batch{}, err
	}
	return updated, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func saveBatch(ctx context.Context, db execer, b domain.Batch) error {
	const q = `
        UPDATE batches
           SET succeeded_count = $2, failed_count = $3, status = $4, started_at = $5, completed_at = $6,
               counted = $7, completed_by = $8, published = $9
         WHERE id = $1`
	tag, err := db.Exec(ctx, q, b.ID, b.SucceededCount, b.FailedCount, string(b.Status), b.StartedAt, b.CompletedAt,
		counted(b), b.CompletedBy, b.Published)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", b.ID, domain.ErrNotFound)
	}
	return nil
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		t        domain.Task
		status   string
		priority int
	)
	err := row.Scan(&t.ID, &t.BatchID, &t.OwnerID, &t.Payload, &status, &priority, &t.Result, &t.Attempts, &t.CreatedAt, &t.CompletedAt)
	t.Status = domain.TaskStatus(status)
	t.Priority = domain.Priority(priority)
	return t, err
}

func scanBatch(row pgx.Row) (domain.Batch, error) {
	var (
		b        domain.Batch
		status   string
		priority int
	)
	err := row.Scan(&b.ID, &b.OwnerID, &priority, &b.TotalTasks, &b.SucceededCount, &b.FailedCount, &status, &b.CreatedAt, &b.StartedAt, &b.CompletedAt,
		&b.Counted, &b.CompletedBy, &b.Published)
	b.Status = domain.BatchStatus(status)
	b.Priority = domain.Priority(priority)
	return b, err
}

// counted never binds NULL to the NOT NULL array column.
func counted(b domain.Batch) []string {
	if b.Counted == nil {
		return []string{}
	}
	return b.Counted
}
