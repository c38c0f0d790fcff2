// Package engine implements the series automation engine: authoring of
// series graphs, trigger-driven enrollment, synchronous traversal with
// durable suspensions, and the periodic backstop sweep.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opencom-org/series/internal/persistence"
	"github.com/opencom-org/series/pkg/api"
)

// defaultMaxTraversalHops bounds how many blocks a single drive may visit
// before the progress is failed. Connection validation rejects cycles, so
// the cap only matters for graphs corrupted outside the authoring API.
const defaultMaxTraversalHops = 100

// engineImpl is a synchronous, in-process engine implementation. All
// traversal happens on the caller's goroutine; concurrent callers touching
// the same Progress row are serialized by its revision counter.
type engineImpl struct {
	graph    persistence.GraphStore
	progress persistence.ProgressStore
	audit    persistence.AuditStore

	visitors api.VisitorStore
	events   api.EventCounter
	chat     api.ChatChannel
	email    api.EmailChannel

	retry    api.RetryPolicy
	observer api.Observer
	branches *branchEvaluator

	now     func() time.Time
	maxHops int
}

var _ api.Engine = (*engineImpl)(nil)

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence persistence.Persistence

	// Visitors and Events feed rule evaluation. Nil collaborators default
	// to inert implementations: empty snapshots and zero event counts.
	Visitors api.VisitorStore
	Events   api.EventCounter

	// Chat and Email carry out action blocks. When nil, executing the
	// corresponding block type fails the progress with a configuration
	// error rather than panicking.
	Chat  api.ChatChannel
	Email api.EmailChannel

	// Retry defaults to api.DefaultRetryPolicy when zero.
	Retry api.RetryPolicy

	Observer api.Observer

	// Clock overrides the time source, mainly for tests. Nil means time.Now.
	Clock func() time.Time

	// MaxTraversalHops overrides defaultMaxTraversalHops when positive.
	MaxTraversalHops int
}

// InMemoryPersistence returns a persistence triple backed by one shared
// in-memory store.
func InMemoryPersistence() persistence.Persistence {
	mem := persistence.NewMemoryStore()
	return persistence.Persistence{
		Graph:    mem,
		Progress: mem,
		Audit:    mem,
	}
}

// NewInMemoryEngine returns an engine backed entirely by in-memory stores.
// Collaborators are inert; use NewEngineWithConfig to wire visitor
// attributes, event counts and delivery channels.
func NewInMemoryEngine() api.Engine {
	return NewEngine(InMemoryPersistence())
}

// NewInMemoryEngineWithObserver returns an in-memory engine reporting
// lifecycle events to the given observer.
func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: InMemoryPersistence(),
		Observer:    obs,
	})
}

// NewSQLiteEngine returns an engine that persists series, progress and
// audit history in the given SQLite database.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	p, err := SQLitePersistence(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(p), nil
}

// NewSQLiteEngineWithObserver returns a SQLite-backed engine reporting
// lifecycle events to the given observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	p, err := SQLitePersistence(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{
		Persistence: p,
		Observer:    obs,
	}), nil
}

// SQLitePersistence returns a persistence triple over the given database,
// initializing each store's schema.
func SQLitePersistence(db *sql.DB) (persistence.Persistence, error) {
	graph, err := persistence.NewSQLiteGraphStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	prog, err := persistence.NewSQLiteProgressStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	audit, err := persistence.NewSQLiteAuditStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	return persistence.Persistence{
		Graph:    graph,
		Progress: prog,
		Audit:    audit,
	}, nil
}

// RedisPersistence returns a persistence triple keeping progress rows in
// Redis. Series definitions and audit history remain in-memory;
// deployments that need durable definitions compose their own
// persistence.Persistence.
func RedisPersistence(client *redis.Client) persistence.Persistence {
	mem := persistence.NewMemoryStore()
	return persistence.Persistence{
		Graph:    mem,
		Progress: persistence.NewRedisProgressStore(client, "series:"),
		Audit:    mem,
	}
}

// NewRedisEngine returns an engine that keeps progress rows in Redis.
func NewRedisEngine(client *redis.Client) api.Engine {
	return NewEngine(RedisPersistence(client))
}

// NewRedisEngineWithObserver returns a Redis-backed engine reporting
// lifecycle events to the given observer.
func NewRedisEngineWithObserver(client *redis.Client, obs api.Observer) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: RedisPersistence(client),
		Observer:    obs,
	})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	e := &engineImpl{
		graph:    cfg.Persistence.Graph,
		progress: cfg.Persistence.Progress,
		audit:    cfg.Persistence.Audit,
		visitors: cfg.Visitors,
		events:   cfg.Events,
		chat:     cfg.Chat,
		email:    cfg.Email,
		retry:    cfg.Retry,
		observer: cfg.Observer,
		branches: newBranchEvaluator(),
		now:      cfg.Clock,
		maxHops:  cfg.MaxTraversalHops,
	}

	if e.audit == nil {
		e.audit = persistence.NoopAuditStore{}
	}
	if e.visitors == nil {
		e.visitors = emptyVisitorStore{}
	}
	if e.events == nil {
		e.events = zeroEventCounter{}
	}
	if e.chat == nil {
		e.chat = unconfiguredChatChannel{}
	}
	if e.email == nil {
		e.email = unconfiguredEmailChannel{}
	}
	if e.retry == (api.RetryPolicy{}) {
		e.retry = api.DefaultRetryPolicy()
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.maxHops <= 0 {
		e.maxHops = defaultMaxTraversalHops
	}
	return e
}

// NewEngine returns an Engine over the given stores with default
// collaborators. External users access this via the root package helpers.
func NewEngine(p persistence.Persistence) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
	})
}

func (e *engineImpl) GetProgressForVisitorSeries(ctx context.Context, visitorID, seriesID string) (*api.Progress, error) {
	return e.progress.GetForVisitorSeries(ctx, visitorID, seriesID)
}

func (e *engineImpl) ListProgress(ctx context.Context, opts api.ProgressListOptions) ([]*api.Progress, error) {
	return e.progress.ListProgress(ctx, persistence.ProgressFilter{
		WorkspaceID: opts.WorkspaceID,
		SeriesID:    opts.SeriesID,
		VisitorID:   opts.VisitorID,
		Status:      opts.Status,
	})
}

func (e *engineImpl) AuditTrail(ctx context.Context, progressID string) ([]api.AuditEvent, error) {
	return e.audit.ListEvents(ctx, progressID)
}

// Inert collaborator defaults. They keep a partially configured engine
// usable for authoring and enrollment while making unconfigured action
// blocks fail loudly instead of silently succeeding.

type emptyVisitorStore struct{}

func (emptyVisitorStore) Snapshot(ctx context.Context, workspaceID, visitorID string) (api.VisitorSnapshot, error) {
	return api.VisitorSnapshot{}, nil
}

type zeroEventCounter struct{}

func (zeroEventCounter) CountEvents(ctx context.Context, workspaceID, visitorID, eventName string, withinDays int) (int, error) {
	return 0, nil
}

type unconfiguredChatChannel struct{}

func (unconfiguredChatChannel) SendMessage(ctx context.Context, workspaceID, visitorID string, msg api.MessageConfig) error {
	return errors.New("chat channel not configured")
}

type unconfiguredEmailChannel struct{}

func (unconfiguredEmailChannel) SendEmail(ctx context.Context, workspaceID, visitorID string, msg api.MessageConfig) error {
	return errors.New("email channel not configured")
}
