package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteQueue is a persistent task queue implementation backed by SQLite.
// It is safe for concurrent use for our purposes, using simple FIFO semantics
// based on an auto-incrementing id. NotBefore is honored: a task is invisible
// until its earliest eligible time.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS trigger_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			workspace_id TEXT NOT NULL DEFAULT '',
			visitor_id TEXT NOT NULL DEFAULT '',
			event_name TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	now := time.Now()
	enqueuedAt := now.UnixNano()

	var notBefore int64
	if t.NotBefore.IsZero() {
		notBefore = enqueuedAt
	} else {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO trigger_tasks (task_id, type, workspace_id, visitor_id, event_name, attempts, enqueued_at, not_before)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Type),
		t.WorkspaceID,
		t.VisitorID,
		t.EventName,
		t.Attempts,
		enqueuedAt,
		notBefore,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			id          int64
			taskID      string
			typeStr     string
			workspaceID string
			visitorID   string
			eventName   string
			attempts    int
			enqueuedInt int64
			notBefore   int64
		)

		row := tx.QueryRowContext(ctx, `
			SELECT id, task_id, type, workspace_id, visitor_id, event_name, attempts, enqueued_at, not_before
			FROM trigger_tasks
			WHERE not_before <= ?
			ORDER BY not_before, id
			LIMIT 1`, now)
		err = row.Scan(&id, &taskID, &typeStr, &workspaceID, &visitorID, &eventName, &attempts, &enqueuedInt, &notBefore)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				_ = tx.Rollback()
				// Nothing available: sleep a bit and retry.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			_ = tx.Rollback()
			return nil, err
		}

		// Delete the row we just claimed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM trigger_tasks WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}

		task := &Task{
			ID:          taskID,
			Type:        TaskType(typeStr),
			WorkspaceID: workspaceID,
			VisitorID:   visitorID,
			EventName:   eventName,
			Attempts:    attempts,
			EnqueuedAt:  time.Unix(0, enqueuedInt),
			NotBefore:   time.Unix(0, notBefore),
		}

		return task, nil
	}
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM trigger_tasks`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
