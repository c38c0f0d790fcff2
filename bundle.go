package series

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/opencom-org/series/internal/taskqueue"
	workerpkg "github.com/opencom-org/series/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes trigger tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported for now; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Series definitions, visitor progress, and queued
// trigger tasks are persisted in the provided *sql.DB. The engine's
// collaborators stay inert; use NewSQLiteBundleWithOptions to wire visitor
// attributes and delivery channels.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:series.db?_journal=WAL")
//	bundle, err := series.NewSQLiteBundle(db, worker.Config{MaxAttempts: 3})
//	// author series on bundle.Engine
//	// enqueue visitor events via bundle.Worker
func NewSQLiteBundle(db *sql.DB, cfg workerpkg.Config) (*WorkerBundle, error) {
	return NewSQLiteBundleWithOptions(db, cfg, EngineOptions{})
}

// NewSQLiteBundleWithOptions is NewSQLiteBundle with the engine wired to
// the given collaborators.
func NewSQLiteBundleWithOptions(db *sql.DB, cfg workerpkg.Config, opts EngineOptions) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngineWithOptions(db, opts)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := workerpkg.NewWithConfig(eng, q, cfg)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}

// NewRedisBundle constructs an Engine + Queue + Worker combo sharing one
// Redis client: progress rows and queued trigger tasks live under the
// "series:" key prefix. Series definitions and audit history stay in
// process memory, so each process registers its own definitions on
// startup. The engine's collaborators stay inert; use
// NewRedisBundleWithOptions to wire visitor attributes and delivery
// channels.
func NewRedisBundle(client *redis.Client, cfg workerpkg.Config) *WorkerBundle {
	return NewRedisBundleWithOptions(client, cfg, EngineOptions{})
}

// NewRedisBundleWithOptions is NewRedisBundle with the engine wired to the
// given collaborators.
func NewRedisBundleWithOptions(client *redis.Client, cfg workerpkg.Config, opts EngineOptions) *WorkerBundle {
	eng := NewRedisEngineWithOptions(client, opts)
	q := taskqueue.NewRedisQueue(client, "series:")
	w := workerpkg.NewWithConfig(eng, q, cfg)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}
}
