package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what external signal a task carries.
type TaskType string

const (
	// TaskTypeAttributeChange reports that a visitor attribute changed.
	TaskTypeAttributeChange TaskType = "attribute-change"
	// TaskTypeVisitorEvent reports that a named visitor event fired.
	TaskTypeVisitorEvent TaskType = "visitor-event"
)

// Task represents one trigger signal for the worker: a visitor did
// something, and waiting progress may resume or new enrollment may start.
type Task struct {
	ID   string
	Type TaskType

	WorkspaceID string
	VisitorID   string

	// EventName is set for visitor-event tasks.
	EventName string

	// Attempts counts how many times this task has already been handed to
	// a worker and failed. The worker bumps it when re-enqueueing.
	Attempts int

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
