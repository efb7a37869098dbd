package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresQueue is a Queue backed by a PostgreSQL table. Claiming uses
// SELECT ... FOR UPDATE SKIP LOCKED so multiple workers can poll the same
// table without handing a task to more than one of them.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresQueue creates the required schema if needed and returns a queue.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{
		db:           db,
		pollInterval: 100 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS queue_tasks (
			id          BIGSERIAL PRIMARY KEY,
			task_id     TEXT NOT NULL,
			body        BYTEA NOT NULL,
			enqueued_at BIGINT NOT NULL,
			not_before  BIGINT NOT NULL
		);`,
	)
	return err
}

var _ Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) Enqueue(ctx context.Context, t Task) error {
	now := time.Now()
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = t.EnqueuedAt
	}

	body, err := EncodeTask(t)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO queue_tasks (task_id, body, enqueued_at, not_before)
		VALUES ($1, $2, $3, $4)`,
		t.ID,
		body,
		t.EnqueuedAt.UnixNano(),
		notBefore.UnixNano(),
	)
	return err
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *PostgresQueue) tryClaim(ctx context.Context) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id   int64
		body []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, body FROM queue_tasks
		WHERE not_before <= $1
		ORDER BY not_before, id
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, time.Now().UnixNano()).Scan(&id, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_tasks WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return DecodeTask(body)
}

func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM queue_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
