// Package worker provides the background worker implementation used to feed
// visitor triggers into a series engine.
//
// Workers consume trigger tasks from a task queue (a visitor fired an event,
// a visitor attribute changed) and translate them into engine calls: resuming
// waiting progress and evaluating enrollment. They are designed to be
// lightweight and easy to embed in existing services, and they can be scaled
// horizontally for higher throughput.
//
// Most applications construct workers via helper functions in the series
// package, which wire engines, queues, and observers together with sensible
// defaults.
//
// # Worker Responsibilities
//
// A worker is responsible for:
//
//   - Polling a task queue for pending trigger tasks
//   - Resuming progress rows waiting on a fired event
//   - Evaluating enrollment of the visitor into active series
//   - Re-enqueueing failed tasks with backoff, per its Config
//   - Capping task throughput when a rate limit is configured
//
// Workers are long-lived components that typically run in dedicated
// goroutines or processes. Multiple workers can safely operate on the same
// queue to scale processing.
//
// A task failure here means the store itself failed; per-visitor execution
// failures never surface as task errors, they are captured in the affected
// Progress and retried by the engine's own schedule.
//
// # The Sweeper
//
// Trigger tasks only arrive when visitors do something. Duration waits and
// retry backoffs expire on wall-clock time, so the package also provides a
// Sweeper: a ticker-driven loop around the engine's backstop sweep that
// resumes due waiting rows. Every deployment that uses duration waits needs
// exactly one logical sweeper running; extra sweepers are safe but redundant
// since the engine serializes resumption per row.
//
// # Configuration
//
// Workers are configurable through the Config structure, allowing callers
// to control:
//
//   - Task retry attempts and backoff between retries
//   - Throughput (tasks per second and burst size)
//
// The series package exposes convenience constructors for creating workers
// with default settings, while the worker package provides the underlying
// types for more advanced scenarios.
//
// # Integration with Engine and Queues
//
// Workers are decoupled from any particular persistence backend. They rely on
// interfaces provided by the engine and task queue layers:
//
//   - The engine encapsulates series definitions, progress state and block
//     execution.
//   - The task queue provides delivery of trigger tasks to be performed.
//
// Different backends (e.g. in-memory, SQLite, Redis) can be plugged in
// through matching queue implementations. Note that only durable queues
// honor retry backoff delays; the in-memory queue hands tasks out
// immediately.
//
// # Usage
//
// Most users should create workers via the series package, which exposes a
// simplified API for common cases. The worker package is useful when
// implementing custom worker behavior, new queue backends, or separate
// sweep scheduling.
//
// See the series package documentation and examples for typical usage.
package worker
