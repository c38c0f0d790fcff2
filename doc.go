// Package series provides an embeddable, audience-triggered automation engine
// for Go.
//
// Series is designed for backend services that need lifecycle automations such
// as onboarding drips, re-engagement campaigns, or event-driven messaging. It
// runs fully in Go, supports multiple persistence backends, and integrates
// cleanly into existing codebases.
//
// # Core Concepts
//
// The Series programming model is intentionally small and idiomatic:
//
//  1. Engine
//  2. Worker
//  3. Builder
//  4. Blocks and rules
//  5. LocalRunner
//
// These components form a complete automation system with durable per-visitor
// state (when using persistent backends) and a clear mental model.
//
// # Engine
//
// The Engine stores series definitions, persists per-visitor progress, and
// provides APIs to:
//   - author and activate series
//   - evaluate enrollment when a visitor matches an entry trigger
//   - resume visitors waiting on an event
//   - sweep visitors whose duration waits have become due
//   - read progress and the audit trail
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Redis (shared progress state across processes)
//
// Each durable backend includes a matching task queue implementation so
// workers can reliably fetch trigger work.
//
// Engines are safe for use from background workers or from application code
// that wants to evaluate triggers synchronously.
//
// # Worker
//
// A Worker pulls trigger tasks from a configured queue and feeds them to the
// Engine. Workers run asynchronously and can be scaled horizontally.
//
// Responsibilities include:
//   - polling task queues
//   - resuming waiting visitors before evaluating enrollment
//   - applying task retry policies
//   - pacing task intake with an optional rate limit
//
// Applications typically run one or more workers as background goroutines or
// as separate processes. The companion Sweeper periodically asks the Engine to
// advance visitors whose timed waits have elapsed.
//
// # Builder
//
// Builder provides the ergonomic, declarative API used to author series. It
// covers the common sequential shape:
//
//	sr := series.NewBuilder("welcome", workspaceID).
//	    TriggeredByEvent("signed_up").
//	    EntryRules(series.Cond(series.PropertySystem, "plan", series.OpEquals, "trial")).
//	    Email("Welcome!", "Thanks for signing up.").
//	    WaitDays(2).
//	    Chat("How is the trial going?").
//	    MustApply(ctx, engine)
//
// Series created with Builder start as drafts and are registered into an
// Engine before activation. Branching graphs are authored through the Engine
// directly with AddBlock and AddConnection.
//
// # Blocks and rules
//
// A series is a graph of blocks. Three block types exist:
//
//   - chat: deliver an in-app chat message
//   - email: deliver an email
//   - wait: suspend the visitor for a duration or until an event occurs
//
// Connections between blocks may carry branch conditions; a visitor follows
// the first matching edge, falling back to the default edge. Audience rules
// are boolean trees over visitor attributes and event occurrences, built
// with Cond, EventCond, AllOf, and AnyOf.
//
// Entry rules gate enrollment, exit rules remove a visitor mid-series, and
// goal rules mark the series as having achieved its purpose for a visitor.
// Exit wins when exit and goal both match.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, queue, worker, and sweeper into a
// single process-local helper useful for development and unit testing. It lets
// you:
//
//   - author and activate series
//   - track visitor events and attribute changes asynchronously
//   - watch progress advance without wiring real infrastructure
//
// LocalRunner is intentionally not crash-durable; use NewSQLiteBundle for a
// durable engine and queue sharing one database.
//
// # Summary
//
// The goal of Series is to give Go developers an automation engine that feels
// like Go: easy to embed, easy to test, and without operational overhead.
// Engines manage series and visitor state, Workers process trigger tasks,
// Builder authors series, blocks and rules describe behavior, and LocalRunner
// provides a fast, developer-friendly runtime.
//
// For runnable programs, see the examples directory.
package series
