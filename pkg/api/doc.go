// Package api contains the core building blocks used by the series
// automation engine. It defines the data model for series graphs, the
// durable progress records that track each visitor's traversal, the
// audience-rule tree, and the interfaces the engine exposes to and
// consumes from the outside world.
//
// Most users interact with the higher-level series package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Series definitions (triggers, rules, blocks, connections)
//   - Progress records and their lifecycle
//   - Audience rule trees
//   - Collaborator interfaces
//   - Observability
//
// # Series Definitions
//
// A Series describes an automation: which triggers admit visitors, which
// audience rules gate entry, exit, and goal transitions, and a directed
// graph of blocks connected by edges. Definitions are created in draft
// status and only participate in enrollment once activated.
//
// # Progress Records
//
// A Progress row is the durable state machine instance for one visitor in
// one series. It records where the visitor is suspended (a timer deadline
// or an awaited event name, never both), how many execution attempts have
// failed, and which terminal state (completed, exited, goal_reached, or
// failed) eventually ended the traversal. Terminal states are final.
//
// # Audience Rules
//
// Rule trees are recursive boolean predicates over a visitor's attribute
// snapshot and event history. The tree structure lives here; evaluation
// semantics live in the rules package. A nil tree is an unconditional
// match, which is why exit and goal rules are only consulted when present.
//
// # Collaborators
//
// The engine reads visitor attribute snapshots, counts named events, and
// sends chat and email messages through narrow interfaces defined in this
// package. Implementations are supplied by the embedding application; the
// series package ships in-memory versions for development and tests.
//
// # Observability
//
// The Observer interface receives lifecycle callbacks (enrollment, block
// execution, scheduled waits, retries, terminal transitions). Ready-made
// implementations cover structured logging, in-memory counters, and
// fan-out composition; Prometheus and OpenTelemetry observers live in
// their own packages.
//
// # Usage
//
// Most applications should start from the series package, using the
// SeriesBuilder and engine constructors provided there. The api package is
// useful when you need lower-level access or when contributing changes to
// the core engine.
package api
