package api

import "context"

// Engine is the high-level series automation API.
//
// Authoring operations validate referential integrity and reject malformed
// definitions with ValidationError. The three trigger entry points
// (EvaluateEnrollmentForVisitor, ResumeWaitingForEvent and
// ProcessWaitingProgress) capture per-row execution failures into the
// affected Progress and always return structured counts; they only return
// an error when the store itself fails.
type Engine interface {
	// CreateSeries validates and stores a new series in draft status.
	// A missing ID is assigned; Status and StartBlockID are reset.
	CreateSeries(ctx context.Context, s Series) (*Series, error)

	// GetSeries looks up a series by ID.
	GetSeries(ctx context.Context, id string) (*Series, error)

	// ListSeries returns series matching the given options.
	ListSeries(ctx context.Context, opts SeriesListOptions) ([]*Series, error)

	// AddBlock validates and appends a block to a series. The first block
	// added becomes the series start block. A missing block ID is assigned.
	AddBlock(ctx context.Context, seriesID string, b Block) (*Block, error)

	// AddConnection validates and appends an edge between two blocks of
	// the series. Duplicate default edges and edges that would close a
	// cycle are rejected.
	AddConnection(ctx context.Context, seriesID string, c Connection) error

	// ActivateSeries makes the series eligible for enrollment.
	ActivateSeries(ctx context.Context, id string) error

	// DeactivateSeries stops the series from being considered for new
	// enrollments. Already-waiting Progress rows still resume normally.
	DeactivateSeries(ctx context.Context, id string) error

	// EvaluateEnrollmentForVisitor considers every active series of the
	// workspace against the trigger: series the visitor is already
	// waiting in, series without a matching entry trigger, and series
	// whose entry rules evaluate false are skipped; the rest enroll the
	// visitor and drive the new Progress synchronously to its first
	// suspension or terminal state.
	EvaluateEnrollmentForVisitor(ctx context.Context, workspaceID, visitorID string, trigger TriggerContext) (EnrollmentResult, error)

	// ResumeWaitingForEvent resumes the visitor's waiting Progress rows
	// whose awaited event name exactly equals eventName.
	ResumeWaitingForEvent(ctx context.Context, workspaceID, visitorID, eventName string) (ResumeResult, error)

	// ProcessWaitingProgress is the periodic backstop sweep: it resumes
	// waiting rows whose duration deadline has elapsed, including blocks
	// re-armed for retry. Event-based waits are never touched. The scan
	// is bounded by seriesLimit series and waitingLimitPerSeries rows per
	// series; non-positive limits fall back to defaults.
	ProcessWaitingProgress(ctx context.Context, seriesLimit, waitingLimitPerSeries int) (SweepResult, error)

	// GetProgressForVisitorSeries returns the visitor's most recent
	// Progress for the series.
	GetProgressForVisitorSeries(ctx context.Context, visitorID, seriesID string) (*Progress, error)

	// ListProgress returns progress records matching the given options.
	ListProgress(ctx context.Context, opts ProgressListOptions) ([]*Progress, error)

	// AuditTrail returns the append-only event history of a Progress in
	// insertion order.
	AuditTrail(ctx context.Context, progressID string) ([]AuditEvent, error)
}
