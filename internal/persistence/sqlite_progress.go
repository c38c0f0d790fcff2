package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/opencom-org/series/pkg/api"
)

// SQLiteProgressStore is a ProgressStore backed by SQLite.
//
// The one-waiting-row-per-(visitor, series) invariant is enforced by a
// partial unique index, so concurrent CreateProgress calls race at the
// database rather than in application code. Revision checks ride on
// UPDATE ... WHERE revision = ?.
type SQLiteProgressStore struct {
	db *sql.DB
}

// Ensure SQLiteProgressStore implements ProgressStore.
var _ ProgressStore = (*SQLiteProgressStore)(nil)

// NewSQLiteProgressStore initializes the required schema in the given
// database and returns a new SQLiteProgressStore.
func NewSQLiteProgressStore(db *sql.DB) (*SQLiteProgressStore, error) {
	s := &SQLiteProgressStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteProgressStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS series_progress (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			series_id TEXT NOT NULL,
			visitor_id TEXT NOT NULL,
			status TEXT NOT NULL,
			current_block_id TEXT NOT NULL DEFAULT '',
			wait_until INTEGER,
			wait_event_name TEXT NOT NULL DEFAULT '',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_execution_error TEXT NOT NULL DEFAULT '',
			entered_at INTEGER NOT NULL,
			completed_at INTEGER,
			exited_at INTEGER,
			goal_reached_at INTEGER,
			failed_at INTEGER,
			revision INTEGER NOT NULL DEFAULT 0
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_series_progress_waiting
			ON series_progress(visitor_id, series_id) WHERE status = 'waiting';
		CREATE INDEX IF NOT EXISTS idx_series_progress_event
			ON series_progress(workspace_id, visitor_id, wait_event_name) WHERE status = 'waiting';
		CREATE INDEX IF NOT EXISTS idx_series_progress_due
			ON series_progress(series_id, wait_until) WHERE status = 'waiting';
	`)
	return err
}

const progressColumns = `id, workspace_id, series_id, visitor_id, status, current_block_id, wait_until, wait_event_name, attempt_count, last_execution_error, entered_at, completed_at, exited_at, goal_reached_at, failed_at, revision`

func (s *SQLiteProgressStore) CreateProgress(ctx context.Context, p *api.Progress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO series_progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.WorkspaceID,
		p.SeriesID,
		p.VisitorID,
		string(p.Status),
		p.CurrentBlockID,
		nanosOrNil(p.WaitUntil),
		p.WaitEventName,
		p.AttemptCount,
		p.LastExecutionError,
		p.EnteredAt.UnixNano(),
		nanosOrNil(p.CompletedAt),
		nanosOrNil(p.ExitedAt),
		nanosOrNil(p.GoalReachedAt),
		nanosOrNil(p.FailedAt),
		p.Revision,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrProgressExists
	}
	return err
}

func (s *SQLiteProgressStore) GetProgress(ctx context.Context, id string) (*api.Progress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+progressColumns+`
		FROM series_progress
		WHERE id = ?`,
		id,
	)

	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrProgressNotFound
	}
	return p, err
}

func (s *SQLiteProgressStore) UpdateProgress(ctx context.Context, p *api.Progress) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE series_progress
		SET workspace_id = ?, series_id = ?, visitor_id = ?, status = ?, current_block_id = ?,
			wait_until = ?, wait_event_name = ?, attempt_count = ?, last_execution_error = ?,
			entered_at = ?, completed_at = ?, exited_at = ?, goal_reached_at = ?, failed_at = ?,
			revision = revision + 1
		WHERE id = ? AND revision = ?`,
		p.WorkspaceID,
		p.SeriesID,
		p.VisitorID,
		string(p.Status),
		p.CurrentBlockID,
		nanosOrNil(p.WaitUntil),
		p.WaitEventName,
		p.AttemptCount,
		p.LastExecutionError,
		p.EnteredAt.UnixNano(),
		nanosOrNil(p.CompletedAt),
		nanosOrNil(p.ExitedAt),
		nanosOrNil(p.GoalReachedAt),
		nanosOrNil(p.FailedAt),
		p.ID,
		p.Revision,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM series_progress WHERE id = ?`, p.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return api.ErrProgressNotFound
		}
		if err != nil {
			return err
		}
		return ErrProgressConflict
	}

	p.Revision++
	return nil
}

func (s *SQLiteProgressStore) GetForVisitorSeries(ctx context.Context, visitorID, seriesID string) (*api.Progress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+progressColumns+`
		FROM series_progress
		WHERE visitor_id = ? AND series_id = ?
		ORDER BY (status = 'waiting') DESC, entered_at DESC, rowid DESC
		LIMIT 1`,
		visitorID, seriesID,
	)

	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrProgressNotFound
	}
	return p, err
}

func (s *SQLiteProgressStore) ListProgress(ctx context.Context, filter ProgressFilter) ([]*api.Progress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM series_progress`
	var args []any
	var clauses []string

	if filter.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.SeriesID != "" {
		clauses = append(clauses, "series_id = ?")
		args = append(args, filter.SeriesID)
	}
	if filter.VisitorID != "" {
		clauses = append(clauses, "visitor_id = ?")
		args = append(args, filter.VisitorID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query = query + " ORDER BY entered_at ASC, rowid ASC"

	return s.queryProgress(ctx, query, args...)
}

func (s *SQLiteProgressStore) ListWaitingForEvent(ctx context.Context, workspaceID, visitorID, eventName string) ([]*api.Progress, error) {
	if eventName == "" {
		return nil, nil
	}
	return s.queryProgress(ctx, `
		SELECT `+progressColumns+`
		FROM series_progress
		WHERE workspace_id = ? AND visitor_id = ? AND status = 'waiting' AND wait_event_name = ?
		ORDER BY entered_at ASC, rowid ASC`,
		workspaceID, visitorID, eventName,
	)
}

func (s *SQLiteProgressStore) ListDueWaiting(ctx context.Context, seriesID string, now time.Time, limit int) ([]*api.Progress, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryProgress(ctx, `
		SELECT `+progressColumns+`
		FROM series_progress
		WHERE series_id = ? AND status = 'waiting' AND wait_until IS NOT NULL AND wait_until <= ?
		ORDER BY wait_until ASC, rowid ASC
		LIMIT ?`,
		seriesID, now.UnixNano(), limit,
	)
}

func (s *SQLiteProgressStore) ListSeriesWithDueWaiting(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT series_id
		FROM series_progress
		WHERE status = 'waiting' AND wait_until IS NOT NULL AND wait_until <= ?
		GROUP BY series_id
		ORDER BY MIN(wait_until) ASC, series_id ASC
		LIMIT ?`,
		now.UnixNano(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *SQLiteProgressStore) queryProgress(ctx context.Context, query string, args ...any) ([]*api.Progress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*api.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	return result, rows.Err()
}

func scanProgress(rs rowScanner) (*api.Progress, error) {
	var p api.Progress
	var statusStr string
	var waitUntil, completedAt, exitedAt, goalReachedAt, failedAt sql.NullInt64
	var enteredAt int64

	if err := rs.Scan(
		&p.ID,
		&p.WorkspaceID,
		&p.SeriesID,
		&p.VisitorID,
		&statusStr,
		&p.CurrentBlockID,
		&waitUntil,
		&p.WaitEventName,
		&p.AttemptCount,
		&p.LastExecutionError,
		&enteredAt,
		&completedAt,
		&exitedAt,
		&goalReachedAt,
		&failedAt,
		&p.Revision,
	); err != nil {
		return nil, err
	}

	p.Status = api.ProgressStatus(statusStr)
	p.EnteredAt = time.Unix(0, enteredAt)
	p.WaitUntil = timeOrNil(waitUntil)
	p.CompletedAt = timeOrNil(completedAt)
	p.ExitedAt = timeOrNil(exitedAt)
	p.GoalReachedAt = timeOrNil(goalReachedAt)
	p.FailedAt = timeOrNil(failedAt)

	return &p, nil
}

func nanosOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeOrNil(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}
