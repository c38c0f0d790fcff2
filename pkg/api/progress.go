package api

import "time"

// ProgressStatus is the lifecycle state of a Progress record.
type ProgressStatus string

const (
	// ProgressWaiting is the only non-terminal status: the visitor is
	// suspended on a timer, an awaited event, or a retry backoff.
	ProgressWaiting ProgressStatus = "waiting"
	// ProgressCompleted means the traversal fell off the end of the graph.
	ProgressCompleted ProgressStatus = "completed"
	// ProgressExited means the exit rules matched at a checkpoint.
	ProgressExited ProgressStatus = "exited"
	// ProgressGoalReached means the goal rules matched at a checkpoint.
	ProgressGoalReached ProgressStatus = "goal_reached"
	// ProgressFailed means execution failed terminally, either by
	// exhausting the retry budget or by a non-recoverable error.
	ProgressFailed ProgressStatus = "failed"
)

// IsTerminal reports whether s is a final status. Terminal Progress rows
// are never executed, resumed, or re-enrolled.
func (s ProgressStatus) IsTerminal() bool {
	switch s {
	case ProgressCompleted, ProgressExited, ProgressGoalReached, ProgressFailed:
		return true
	default:
		return false
	}
}

// Progress is the durable enrollment record of one visitor in one series.
//
// At most one waiting Progress exists per (visitor, series) pair. While
// Status is ProgressWaiting, exactly one of WaitUntil and WaitEventName is
// set when the row is suspended on a wait block or a retry backoff;
// CurrentBlockID names the block being waited on.
type Progress struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	VisitorID   string `json:"visitor_id"`
	SeriesID    string `json:"series_id"`

	Status ProgressStatus `json:"status"`

	// CurrentBlockID is the block the row is suspended on: a wait block,
	// or an action block re-armed for retry. Empty when not suspended.
	CurrentBlockID string `json:"current_block_id,omitempty"`

	// WaitUntil is the deadline of a duration-based suspension. The
	// backstop sweep resumes the row once it elapses.
	WaitUntil *time.Time `json:"wait_until,omitempty"`

	// WaitEventName is the event an event-based suspension awaits.
	// Only an exactly matching event resumes the row.
	WaitEventName string `json:"wait_event_name,omitempty"`

	// AttemptCount is the number of failed execution attempts. It is
	// monotonically non-decreasing; reaching the retry policy's maximum
	// forces ProgressFailed.
	AttemptCount int `json:"attempt_count"`

	// LastExecutionError is the message of the most recent execution
	// failure, kept for operator visibility.
	LastExecutionError string `json:"last_execution_error,omitempty"`

	EnteredAt     time.Time  `json:"entered_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ExitedAt      *time.Time `json:"exited_at,omitempty"`
	GoalReachedAt *time.Time `json:"goal_reached_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`

	// Revision backs optimistic concurrency control. Every successful
	// update increments it; stale writers lose.
	Revision int64 `json:"revision"`
}

// EnrollmentResult reports one enrollment evaluation pass.
type EnrollmentResult struct {
	// Evaluated counts the active series that were considered.
	Evaluated int
	// Entered counts the series a Progress row was created for,
	// regardless of its immediate outcome.
	Entered int
}

// ResumeResult reports one event-resume pass.
type ResumeResult struct {
	// Matched counts the waiting rows whose awaited event name equaled
	// the fired event.
	Matched int
	// Resumed counts the matched rows that advanced out of their wait,
	// including rows that re-suspended on a different wait. Rows re-armed
	// by a recoverable-error retry do not count.
	Resumed int
}

// SweepResult reports one backstop sweep pass.
type SweepResult struct {
	// Processed counts the due waiting rows the sweep drove forward.
	Processed int
}

// ProgressListOptions controls how progress records are listed.
// Zero values mean "no filter" for that field.
type ProgressListOptions struct {
	WorkspaceID string
	SeriesID    string
	VisitorID   string
	Status      ProgressStatus
}
