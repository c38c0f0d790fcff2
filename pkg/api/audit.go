package api

import "time"

// AuditEventType identifies a progress history event.
type AuditEventType string

const (
	AuditProgressEnrolled    AuditEventType = "progress.enrolled"
	AuditProgressResumed     AuditEventType = "progress.resumed"
	AuditProgressCompleted   AuditEventType = "progress.completed"
	AuditProgressExited      AuditEventType = "progress.exited"
	AuditProgressGoalReached AuditEventType = "progress.goal_reached"
	AuditProgressFailed      AuditEventType = "progress.failed"

	AuditBlockExecuted AuditEventType = "block.executed"
	AuditBlockFailed   AuditEventType = "block.failed"

	AuditWaitScheduled  AuditEventType = "wait.scheduled"
	AuditRetryScheduled AuditEventType = "retry.scheduled"
)

// AuditEvent is a minimal append-only history record for operator
// visibility and debugging. It is intentionally small and stable.
type AuditEvent struct {
	ProgressID string
	At         time.Time
	Type       AuditEventType

	// Optional context.
	SeriesID  string
	VisitorID string
	BlockID   string

	// Small, human-oriented details (e.g. event name, error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}
