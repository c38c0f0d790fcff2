package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/opencom-org/series/pkg/api"
)

// SQLiteAuditStore stores progress audit events in SQLite.
type SQLiteAuditStore struct {
	db *sql.DB
}

// Ensure SQLiteAuditStore implements AuditStore.
var _ AuditStore = (*SQLiteAuditStore)(nil)

func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	s := &SQLiteAuditStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteAuditStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS progress_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			progress_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			series_id TEXT NOT NULL DEFAULT '',
			visitor_id TEXT NOT NULL DEFAULT '',
			block_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_progress_audit_progress_id ON progress_audit(progress_id, id);
	`)
	return err
}

func (s *SQLiteAuditStore) AppendEvent(ctx context.Context, ev api.AuditEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_audit (progress_id, at, type, series_id, visitor_id, block_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ProgressID,
		at.UnixNano(),
		string(ev.Type),
		ev.SeriesID,
		ev.VisitorID,
		ev.BlockID,
		ev.Detail,
	)
	return err
}

func (s *SQLiteAuditStore) ListEvents(ctx context.Context, progressID string) ([]api.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT progress_id, at, type, series_id, visitor_id, block_id, detail
		FROM progress_audit
		WHERE progress_id = ?
		ORDER BY id ASC`, progressID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.AuditEvent
	for rows.Next() {
		var (
			id       string
			atN      int64
			typ      string
			seriesID string
			visitor  string
			blockID  string
			detail   string
		)
		if err := rows.Scan(&id, &atN, &typ, &seriesID, &visitor, &blockID, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.AuditEvent{
			ProgressID: id,
			At:         time.Unix(0, atN),
			Type:       api.AuditEventType(typ),
			SeriesID:   seriesID,
			VisitorID:  visitor,
			BlockID:    blockID,
			Detail:     detail,
		})
	}
	return out, rows.Err()
}
