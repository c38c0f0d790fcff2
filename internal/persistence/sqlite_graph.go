package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/opencom-org/series/pkg/api"
)

// SQLiteGraphStore is a GraphStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteGraphStore struct {
	db *sql.DB
}

// Ensure SQLiteGraphStore implements GraphStore.
var _ GraphStore = (*SQLiteGraphStore)(nil)

// NewSQLiteGraphStore initializes the required schema in the given
// database and returns a new SQLiteGraphStore.
func NewSQLiteGraphStore(db *sql.DB) (*SQLiteGraphStore, error) {
	s := &SQLiteGraphStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteGraphStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS series (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			entry_triggers BLOB,
			entry_rules BLOB,
			exit_rules BLOB,
			goal_rules BLOB,
			start_block_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS series_blocks (
			series_id TEXT NOT NULL,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			config BLOB,
			position BLOB,
			PRIMARY KEY (series_id, id)
		);
		CREATE TABLE IF NOT EXISTS series_connections (
			series_id TEXT NOT NULL,
			from_block_id TEXT NOT NULL,
			to_block_id TEXT NOT NULL,
			condition TEXT NOT NULL,
			PRIMARY KEY (series_id, from_block_id, condition)
		);
	`)
	return err
}

func (s *SQLiteGraphStore) SaveSeries(ctx context.Context, sr *api.Series) error {
	triggers, err := EncodeJSON(sr.EntryTriggers)
	if err != nil {
		return err
	}
	entry, err := EncodeJSON(sr.EntryRules)
	if err != nil {
		return err
	}
	exit, err := EncodeJSON(sr.ExitRules)
	if err != nil {
		return err
	}
	goal, err := EncodeJSON(sr.GoalRules)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO series (id, workspace_id, name, status, entry_triggers, entry_rules, exit_rules, goal_rules, start_block_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			workspace_id = excluded.workspace_id,
			name = excluded.name,
			status = excluded.status,
			entry_triggers = excluded.entry_triggers,
			entry_rules = excluded.entry_rules,
			exit_rules = excluded.exit_rules,
			goal_rules = excluded.goal_rules,
			start_block_id = excluded.start_block_id,
			created_at = excluded.created_at`,
		sr.ID,
		sr.WorkspaceID,
		sr.Name,
		string(sr.Status),
		triggers,
		entry,
		exit,
		goal,
		sr.StartBlockID,
		sr.CreatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteGraphStore) GetSeries(ctx context.Context, id string) (*api.Series, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, status, entry_triggers, entry_rules, exit_rules, goal_rules, start_block_id, created_at
		FROM series
		WHERE id = ?`,
		id,
	)

	sr, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrSeriesNotFound
	}
	return sr, err
}

func (s *SQLiteGraphStore) ListSeries(ctx context.Context, filter SeriesFilter) ([]*api.Series, error) {
	query := `
		SELECT id, workspace_id, name, status, entry_triggers, entry_rules, exit_rules, goal_rules, start_block_id, created_at
		FROM series`
	var args []any
	var clauses []string

	if filter.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query = query + " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*api.Series
	for rows.Next() {
		sr, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sr)
	}

	return result, rows.Err()
}

func (s *SQLiteGraphStore) UpdateSeriesStatus(ctx context.Context, id string, status api.SeriesStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE series SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrSeriesNotFound
	}

	return nil
}

func (s *SQLiteGraphStore) SetStartBlock(ctx context.Context, seriesID, blockID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE series SET start_block_id = ? WHERE id = ?`,
		blockID, seriesID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrSeriesNotFound
	}

	return nil
}

func (s *SQLiteGraphStore) SaveBlock(ctx context.Context, b *api.Block) error {
	if err := s.seriesExists(ctx, b.SeriesID); err != nil {
		return err
	}

	config, err := EncodeJSON(b.Config)
	if err != nil {
		return err
	}
	position, err := EncodeJSON(b.Position)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO series_blocks (series_id, id, type, config, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (series_id, id) DO UPDATE SET
			type = excluded.type,
			config = excluded.config,
			position = excluded.position`,
		b.SeriesID,
		b.ID,
		string(b.Type),
		config,
		position,
	)
	return err
}

func (s *SQLiteGraphStore) GetBlock(ctx context.Context, seriesID, blockID string) (*api.Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT series_id, id, type, config, position
		FROM series_blocks
		WHERE series_id = ? AND id = ?`,
		seriesID, blockID,
	)

	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrBlockNotFound
	}
	return b, err
}

func (s *SQLiteGraphStore) ListBlocks(ctx context.Context, seriesID string) ([]*api.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT series_id, id, type, config, position
		FROM series_blocks
		WHERE series_id = ?
		ORDER BY rowid ASC`,
		seriesID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*api.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	return result, rows.Err()
}

func (s *SQLiteGraphStore) SaveConnection(ctx context.Context, c *api.Connection) error {
	if err := s.seriesExists(ctx, c.SeriesID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO series_connections (series_id, from_block_id, to_block_id, condition)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (series_id, from_block_id, condition) DO UPDATE SET
			to_block_id = excluded.to_block_id`,
		c.SeriesID,
		c.FromBlockID,
		c.ToBlockID,
		c.Condition,
	)
	return err
}

func (s *SQLiteGraphStore) ListConnections(ctx context.Context, seriesID string) ([]*api.Connection, error) {
	return s.queryConnections(ctx, `
		SELECT series_id, from_block_id, to_block_id, condition
		FROM series_connections
		WHERE series_id = ?
		ORDER BY rowid ASC`,
		seriesID,
	)
}

func (s *SQLiteGraphStore) ListConnectionsFrom(ctx context.Context, seriesID, fromBlockID string) ([]*api.Connection, error) {
	return s.queryConnections(ctx, `
		SELECT series_id, from_block_id, to_block_id, condition
		FROM series_connections
		WHERE series_id = ? AND from_block_id = ?
		ORDER BY rowid ASC`,
		seriesID, fromBlockID,
	)
}

func (s *SQLiteGraphStore) queryConnections(ctx context.Context, query string, args ...any) ([]*api.Connection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*api.Connection
	for rows.Next() {
		var c api.Connection
		if err := rows.Scan(&c.SeriesID, &c.FromBlockID, &c.ToBlockID, &c.Condition); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}

	return result, rows.Err()
}

func (s *SQLiteGraphStore) seriesExists(ctx context.Context, seriesID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM series WHERE id = ?`, seriesID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return api.ErrSeriesNotFound
	}
	return err
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(rs rowScanner) (*api.Series, error) {
	var sr api.Series
	var statusStr string
	var triggers, entry, exit, goal []byte
	var createdAt int64

	if err := rs.Scan(&sr.ID, &sr.WorkspaceID, &sr.Name, &statusStr, &triggers, &entry, &exit, &goal, &sr.StartBlockID, &createdAt); err != nil {
		return nil, err
	}

	sr.Status = api.SeriesStatus(statusStr)
	sr.CreatedAt = time.Unix(0, createdAt)

	var err error
	if sr.EntryTriggers, err = DecodeJSON[[]api.EntryTrigger](triggers); err != nil {
		return nil, err
	}
	if sr.EntryRules, err = DecodeJSON[*api.RuleNode](entry); err != nil {
		return nil, err
	}
	if sr.ExitRules, err = DecodeJSON[*api.RuleNode](exit); err != nil {
		return nil, err
	}
	if sr.GoalRules, err = DecodeJSON[*api.RuleNode](goal); err != nil {
		return nil, err
	}

	return &sr, nil
}

func scanBlock(rs rowScanner) (*api.Block, error) {
	var b api.Block
	var typeStr string
	var config, position []byte

	if err := rs.Scan(&b.SeriesID, &b.ID, &typeStr, &config, &position); err != nil {
		return nil, err
	}

	b.Type = api.BlockType(typeStr)

	cfg, err := DecodeJSON[api.BlockConfig](config)
	if err != nil {
		return nil, err
	}
	b.Config = cfg

	pos, err := DecodeJSON[api.Position](position)
	if err != nil {
		return nil, err
	}
	b.Position = pos

	return &b, nil
}
