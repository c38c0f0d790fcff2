package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/opencom-org/series/pkg/api"
)

var (
	// ErrProgressExists is returned by CreateProgress when the visitor
	// already has a waiting progress row for the series. Concurrent
	// creates for the same (visitor, series) pair yield exactly one
	// success; the rest get this error.
	ErrProgressExists = errors.New("waiting progress already exists")

	// ErrProgressConflict is returned by UpdateProgress when the stored
	// revision no longer matches: another invocation updated the row
	// first and this writer must not apply its stale state.
	ErrProgressConflict = errors.New("progress revision conflict")
)

// SeriesFilter is used to select series from the store.
// Empty string / zero status mean "no filter" for that field.
type SeriesFilter struct {
	WorkspaceID string
	Status      api.SeriesStatus
}

// GraphStore handles storage of series definitions: the series records
// themselves plus their block graphs. Lookups return api.ErrSeriesNotFound
// and api.ErrBlockNotFound for missing rows.
type GraphStore interface {
	SaveSeries(ctx context.Context, s *api.Series) error
	GetSeries(ctx context.Context, id string) (*api.Series, error)
	ListSeries(ctx context.Context, filter SeriesFilter) ([]*api.Series, error)
	UpdateSeriesStatus(ctx context.Context, id string, status api.SeriesStatus) error

	// SetStartBlock records the graph entry point of the series.
	SetStartBlock(ctx context.Context, seriesID, blockID string) error

	SaveBlock(ctx context.Context, b *api.Block) error
	GetBlock(ctx context.Context, seriesID, blockID string) (*api.Block, error)
	// ListBlocks returns the series' blocks in insertion order.
	ListBlocks(ctx context.Context, seriesID string) ([]*api.Block, error)

	SaveConnection(ctx context.Context, c *api.Connection) error
	// ListConnections returns the series' edges in insertion order.
	ListConnections(ctx context.Context, seriesID string) ([]*api.Connection, error)
	// ListConnectionsFrom returns the edges leaving fromBlockID in
	// insertion order.
	ListConnectionsFrom(ctx context.Context, seriesID, fromBlockID string) ([]*api.Connection, error)
}

// ProgressFilter is used to select progress rows from the store.
// Empty string / zero status mean "no filter" for that field.
type ProgressFilter struct {
	WorkspaceID string
	SeriesID    string
	VisitorID   string
	Status      api.ProgressStatus
}

// ProgressStore handles storage of progress records.
//
// UpdateProgress is an optimistic-concurrency write: it applies p only if
// the stored revision still equals p.Revision, increments the revision on
// success (both in the store and on p), and returns ErrProgressConflict
// when the writer lost the race. Every engine state transition goes
// through it, which is what serializes concurrent invocations touching
// the same row.
type ProgressStore interface {
	// CreateProgress inserts a new waiting progress row. The insert and
	// the one-waiting-row-per-(visitor, series) check are atomic.
	CreateProgress(ctx context.Context, p *api.Progress) error

	GetProgress(ctx context.Context, id string) (*api.Progress, error)
	UpdateProgress(ctx context.Context, p *api.Progress) error

	// GetForVisitorSeries returns the visitor's progress for the series,
	// preferring the live waiting row over terminal ones, then the most
	// recently entered. Returns api.ErrProgressNotFound when the visitor
	// was never enrolled.
	GetForVisitorSeries(ctx context.Context, visitorID, seriesID string) (*api.Progress, error)

	ListProgress(ctx context.Context, filter ProgressFilter) ([]*api.Progress, error)

	// ListWaitingForEvent returns the visitor's waiting rows whose
	// awaited event name equals eventName exactly. An empty eventName
	// matches nothing; duration waits store an empty awaited name and
	// must not be resumable by events.
	ListWaitingForEvent(ctx context.Context, workspaceID, visitorID, eventName string) ([]*api.Progress, error)

	// ListDueWaiting returns up to limit waiting rows of the series whose
	// duration deadline is at or before now, earliest deadline first.
	// Event-based waits are never returned.
	ListDueWaiting(ctx context.Context, seriesID string, now time.Time, limit int) ([]*api.Progress, error)

	// ListSeriesWithDueWaiting returns up to limit distinct series IDs
	// having at least one due duration wait, earliest deadline first.
	ListSeriesWithDueWaiting(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// AuditStore is an append-only history store for progress execution events.
type AuditStore interface {
	AppendEvent(ctx context.Context, ev api.AuditEvent) error
	ListEvents(ctx context.Context, progressID string) ([]api.AuditEvent, error)
}

// NoopAuditStore discards all events.
type NoopAuditStore struct{}

func (NoopAuditStore) AppendEvent(ctx context.Context, ev api.AuditEvent) error { return nil }
func (NoopAuditStore) ListEvents(ctx context.Context, progressID string) ([]api.AuditEvent, error) {
	return nil, nil
}
