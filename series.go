package series

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/opencom-org/series/internal/collab"
	"github.com/opencom-org/series/internal/engine"
	"github.com/opencom-org/series/internal/taskqueue"
	"github.com/opencom-org/series/pkg/api"
	"github.com/opencom-org/series/pkg/seriesdef"
	"github.com/opencom-org/series/pkg/worker"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Series               = api.Series
	SeriesStatus         = api.SeriesStatus
	Block                = api.Block
	BlockType            = api.BlockType
	BlockConfig          = api.BlockConfig
	Connection           = api.Connection
	EntryTrigger         = api.EntryTrigger
	TriggerSource        = api.TriggerSource
	TriggerContext       = api.TriggerContext
	WaitConfig           = api.WaitConfig
	WaitKind             = api.WaitKind
	WaitUnit             = api.WaitUnit
	MessageConfig        = api.MessageConfig
	RuleNode             = api.RuleNode
	PropertySource       = api.PropertySource
	RuleOperator         = api.RuleOperator
	CountOperator        = api.CountOperator
	Progress             = api.Progress
	ProgressStatus       = api.ProgressStatus
	SeriesListOptions    = api.SeriesListOptions
	ProgressListOptions  = api.ProgressListOptions
	EnrollmentResult     = api.EnrollmentResult
	ResumeResult         = api.ResumeResult
	SweepResult          = api.SweepResult
	AuditEvent           = api.AuditEvent
	RetryPolicy          = api.RetryPolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	VisitorSnapshot      = api.VisitorSnapshot
	VisitorStore         = api.VisitorStore
	EventCounter         = api.EventCounter
	ChatChannel          = api.ChatChannel
	EmailChannel         = api.EmailChannel
)

// Re-export common observer and rule helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	Cond                 = api.Cond
	EventCond            = api.EventCond
	AllOf                = api.AllOf
	AnyOf                = api.AnyOf
)

// Re-export status and enum values for convenience.

const (
	SeriesDraft  = api.SeriesDraft
	SeriesActive = api.SeriesActive

	ProgressWaiting     = api.ProgressWaiting
	ProgressCompleted   = api.ProgressCompleted
	ProgressExited      = api.ProgressExited
	ProgressGoalReached = api.ProgressGoalReached
	ProgressFailed      = api.ProgressFailed

	TriggerSourceEvent     = api.TriggerSourceEvent
	TriggerSourceAttribute = api.TriggerSourceAttribute

	BlockWait  = api.BlockWait
	BlockChat  = api.BlockChat
	BlockEmail = api.BlockEmail

	WaitDuration   = api.WaitDuration
	WaitUntilEvent = api.WaitUntilEvent

	UnitSeconds = api.UnitSeconds
	UnitMinutes = api.UnitMinutes
	UnitHours   = api.UnitHours
	UnitDays    = api.UnitDays

	ConditionDefault = api.ConditionDefault

	PropertySystem = api.PropertySystem
	PropertyCustom = api.PropertyCustom
	PropertyEvent  = api.PropertyEvent

	OpEquals      = api.OpEquals
	OpNotEquals   = api.OpNotEquals
	OpContains    = api.OpContains
	OpNotContains = api.OpNotContains
	OpStartsWith  = api.OpStartsWith
	OpEndsWith    = api.OpEndsWith
	OpGreaterThan = api.OpGreaterThan
	OpLessThan    = api.OpLessThan
	OpIsSet       = api.OpIsSet
	OpIsUnset     = api.OpIsUnset

	CountAtLeast = api.CountAtLeast
	CountAtMost  = api.CountAtMost
	CountExactly = api.CountExactly
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists series definitions,
// progress rows and audit history in a SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// NewRedisEngine returns an Engine that keeps progress rows in Redis.
// Series definitions stay in-memory.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return engine.NewRedisEngineWithObserver(client, obs)
}

// Task queue constructors
// Queues carry trigger tasks from your ingestion path to the workers.

// Queue is the task queue interface consumed by workers.
type Queue = taskqueue.Queue

// NewInMemoryQueue returns a process-local queue with the given capacity.
func NewInMemoryQueue(capacity int) Queue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewSQLiteQueue returns a durable queue persisted in the given database.
// Tasks survive process restarts and scheduled tasks are held back until due.
func NewSQLiteQueue(db *sql.DB) (Queue, error) {
	return taskqueue.NewSQLiteQueue(db)
}

// NewRedisQueue returns a queue backed by a Redis list under the given key
// prefix, shared by every process connected to the same Redis.
func NewRedisQueue(client *redis.Client, prefix string) Queue {
	return taskqueue.NewRedisQueue(client, prefix)
}

// Worker constructors

// Worker drains trigger tasks from a Queue into an Engine.
type Worker = worker.Worker

// WorkerConfig controls task retries and intake pacing for a Worker.
type WorkerConfig = worker.Config

// NewWorker returns a Worker with default config: no task retries, no rate
// limit.
func NewWorker(eng Engine, q Queue) *Worker {
	return worker.New(eng, q)
}

// NewWorkerWithConfig returns a Worker with explicit retry and pacing config.
func NewWorkerWithConfig(eng Engine, q Queue, cfg WorkerConfig) *Worker {
	return worker.NewWithConfig(eng, q, cfg)
}

// In-memory collaborators
// Embedding applications bring their own visitor store, event counter and
// delivery channels; these memory implementations cover local development
// and tests.

type (
	MemoryVisitorStore = collab.MemoryVisitorStore
	MemoryEventLog     = collab.MemoryEventLog
	MemoryChatChannel  = collab.MemoryChatChannel
	MemoryEmailChannel = collab.MemoryEmailChannel
	SentMessage        = collab.SentMessage
	SentEmail          = collab.SentEmail
)

// NewMemoryVisitorStore returns an empty in-process visitor store.
func NewMemoryVisitorStore() *MemoryVisitorStore {
	return collab.NewMemoryVisitorStore()
}

// NewMemoryEventLog returns an empty in-process event log.
func NewMemoryEventLog() *MemoryEventLog {
	return collab.NewMemoryEventLog()
}

// NewMemoryChatChannel returns a chat channel that records sent messages.
func NewMemoryChatChannel() *MemoryChatChannel {
	return collab.NewMemoryChatChannel()
}

// NewMemoryEmailChannel returns an email channel that records sent emails.
// Sends to visitors without an email attribute fail recoverably.
func NewMemoryEmailChannel(visitors *MemoryVisitorStore) *MemoryEmailChannel {
	return collab.NewMemoryEmailChannel(visitors)
}

// Definition documents

// DefinitionDocument is a parsed YAML or JSON series definition, ready to
// be registered with Apply.
type DefinitionDocument = seriesdef.Document

// ParseDefinition decodes and schema-checks a series definition document.
func ParseDefinition(data []byte) (*DefinitionDocument, error) {
	return seriesdef.Parse(data)
}

// ParseDefinitionFile reads a series definition document from disk.
func ParseDefinitionFile(path string) (*DefinitionDocument, error) {
	return seriesdef.ParseFile(path)
}

// EngineOptions collects the collaborators an engine needs beyond its
// stores: visitor attributes, event counts, delivery channels, retries and
// observability.
type EngineOptions struct {
	Visitors VisitorStore
	Events   EventCounter
	Chat     ChatChannel
	Email    EmailChannel
	Retry    RetryPolicy
	Observer Observer
}

// NewInMemoryEngineWithOptions returns an in-memory Engine wired to the
// given collaborators. Nil fields keep their inert defaults.
func NewInMemoryEngineWithOptions(opts EngineOptions) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Persistence: engine.InMemoryPersistence(),
		Visitors:    opts.Visitors,
		Events:      opts.Events,
		Chat:        opts.Chat,
		Email:       opts.Email,
		Retry:       opts.Retry,
		Observer:    opts.Observer,
	})
}

// NewSQLiteEngineWithOptions returns a SQLite-backed Engine wired to the
// given collaborators. Nil fields keep their inert defaults.
func NewSQLiteEngineWithOptions(db *sql.DB, opts EngineOptions) (Engine, error) {
	p, err := engine.SQLitePersistence(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(engine.Config{
		Persistence: p,
		Visitors:    opts.Visitors,
		Events:      opts.Events,
		Chat:        opts.Chat,
		Email:       opts.Email,
		Retry:       opts.Retry,
		Observer:    opts.Observer,
	}), nil
}

// NewRedisEngineWithOptions returns a Redis-backed Engine wired to the
// given collaborators. Nil fields keep their inert defaults.
func NewRedisEngineWithOptions(client *redis.Client, opts EngineOptions) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Persistence: engine.RedisPersistence(client),
		Visitors:    opts.Visitors,
		Events:      opts.Events,
		Chat:        opts.Chat,
		Email:       opts.Email,
		Retry:       opts.Retry,
		Observer:    opts.Observer,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// EvaluateEnrollment evaluates enrollment of a visitor against every active
// series of the workspace.
func EvaluateEnrollment(ctx context.Context, eng Engine, workspaceID, visitorID string, trigger TriggerContext) (EnrollmentResult, error) {
	return eng.EvaluateEnrollmentForVisitor(ctx, workspaceID, visitorID, trigger)
}

// ResumeForEvent resumes the visitor's progress rows waiting on the event.
func ResumeForEvent(ctx context.Context, eng Engine, workspaceID, visitorID, eventName string) (ResumeResult, error) {
	return eng.ResumeWaitingForEvent(ctx, workspaceID, visitorID, eventName)
}

// Sweep runs one backstop pass over due waiting progress. Non-positive
// limits fall back to the engine defaults.
func Sweep(ctx context.Context, eng Engine, seriesLimit, waitingLimitPerSeries int) (SweepResult, error) {
	return eng.ProcessWaitingProgress(ctx, seriesLimit, waitingLimitPerSeries)
}

// GetProgress fetches the visitor's most recent progress in a series.
func GetProgress(ctx context.Context, eng Engine, visitorID, seriesID string) (*Progress, error) {
	return eng.GetProgressForVisitorSeries(ctx, visitorID, seriesID)
}

// ListProgress lists progress records according to the given options.
func ListProgress(ctx context.Context, eng Engine, opts ProgressListOptions) ([]*Progress, error) {
	return eng.ListProgress(ctx, opts)
}

// AuditTrail returns the append-only history of a progress row.
func AuditTrail(ctx context.Context, eng Engine, progressID string) ([]AuditEvent, error) {
	return eng.AuditTrail(ctx, progressID)
}
