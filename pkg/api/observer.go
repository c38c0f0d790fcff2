package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the series engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay progress execution.
type Observer interface {
	// OnEnrolled is called once when a visitor is enrolled into a series,
	// before the first block executes.
	OnEnrolled(ctx context.Context, prog *Progress)

	// OnBlockExecuted is called after an action block's side effect ran,
	// for both successes and failures (err != nil).
	OnBlockExecuted(ctx context.Context, prog *Progress, block *Block, err error, duration time.Duration)

	// OnWaitScheduled is called when a wait block suspends the progress.
	// The suspension details are on prog: WaitUntil for duration waits,
	// WaitEventName for event waits.
	OnWaitScheduled(ctx context.Context, prog *Progress, block *Block)

	// OnRetryScheduled is called when a recoverable failure re-arms the
	// current block for a later attempt. prog.AttemptCount is the number
	// of failed attempts so far; nextAt is when the sweep may retry.
	OnRetryScheduled(ctx context.Context, prog *Progress, block *Block, nextAt time.Time)

	// OnProgressFinished is called when a progress reaches any terminal
	// status: completed, exited, goal_reached or failed.
	OnProgressFinished(ctx context.Context, prog *Progress)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnEnrolled(ctx context.Context, prog *Progress) {}
func (NoopObserver) OnBlockExecuted(ctx context.Context, prog *Progress, block *Block, err error, d time.Duration) {
}
func (NoopObserver) OnWaitScheduled(ctx context.Context, prog *Progress, block *Block) {}
func (NoopObserver) OnRetryScheduled(ctx context.Context, prog *Progress, block *Block, nextAt time.Time) {
}
func (NoopObserver) OnProgressFinished(ctx context.Context, prog *Progress) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnEnrolled(ctx context.Context, prog *Progress) {
	for _, o := range c.observers {
		o.OnEnrolled(ctx, prog)
	}
}

func (c *CompositeObserver) OnBlockExecuted(ctx context.Context, prog *Progress, block *Block, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnBlockExecuted(ctx, prog, block, err, d)
	}
}

func (c *CompositeObserver) OnWaitScheduled(ctx context.Context, prog *Progress, block *Block) {
	for _, o := range c.observers {
		o.OnWaitScheduled(ctx, prog, block)
	}
}

func (c *CompositeObserver) OnRetryScheduled(ctx context.Context, prog *Progress, block *Block, nextAt time.Time) {
	for _, o := range c.observers {
		o.OnRetryScheduled(ctx, prog, block, nextAt)
	}
}

func (c *CompositeObserver) OnProgressFinished(ctx context.Context, prog *Progress) {
	for _, o := range c.observers {
		o.OnProgressFinished(ctx, prog)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs progress lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnEnrolled(ctx context.Context, prog *Progress) {
	o.Logger.InfoContext(ctx, "series_enrolled",
		slog.String("series_id", prog.SeriesID),
		slog.String("visitor_id", prog.VisitorID),
		slog.String("progress_id", prog.ID),
	)
}

func (o *LoggingObserver) OnBlockExecuted(ctx context.Context, prog *Progress, block *Block, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "block_executed",
		slog.String("series_id", prog.SeriesID),
		slog.String("progress_id", prog.ID),
		slog.String("block_id", block.ID),
		slog.String("block_type", string(block.Type)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnWaitScheduled(ctx context.Context, prog *Progress, block *Block) {
	attrs := []any{
		slog.String("series_id", prog.SeriesID),
		slog.String("progress_id", prog.ID),
		slog.String("block_id", block.ID),
	}
	if prog.WaitUntil != nil {
		attrs = append(attrs, slog.Time("wait_until", *prog.WaitUntil))
	}
	if prog.WaitEventName != "" {
		attrs = append(attrs, slog.String("wait_event", prog.WaitEventName))
	}
	o.Logger.DebugContext(ctx, "wait_scheduled", attrs...)
}

func (o *LoggingObserver) OnRetryScheduled(ctx context.Context, prog *Progress, block *Block, nextAt time.Time) {
	o.Logger.WarnContext(ctx, "retry_scheduled",
		slog.String("series_id", prog.SeriesID),
		slog.String("progress_id", prog.ID),
		slog.String("block_id", block.ID),
		slog.Int("attempt", prog.AttemptCount),
		slog.Time("next_at", nextAt),
		slog.String("error", prog.LastExecutionError),
	)
}

func (o *LoggingObserver) OnProgressFinished(ctx context.Context, prog *Progress) {
	level := slog.LevelInfo
	if prog.Status == ProgressFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "progress_finished",
		slog.String("series_id", prog.SeriesID),
		slog.String("visitor_id", prog.VisitorID),
		slog.String("progress_id", prog.ID),
		slog.String("status", string(prog.Status)),
		slog.String("error", prog.LastExecutionError),
	)
}

// BasicMetrics collects simple counters and aggregate block durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	enrolled       atomic.Int64
	completed      atomic.Int64
	exited         atomic.Int64
	goalsReached   atomic.Int64
	failed         atomic.Int64
	retries        atomic.Int64
	blocksExecuted atomic.Int64
	totalBlockTime atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Enrolled     int64
	Completed    int64
	Exited       int64
	GoalsReached int64
	Failed       int64
	InFlight     int64

	Retries          int64
	BlocksExecuted   int64
	AvgBlockDuration time.Duration
}

func (m *BasicMetrics) OnEnrolled(ctx context.Context, prog *Progress) {
	m.enrolled.Add(1)
}

func (m *BasicMetrics) OnBlockExecuted(ctx context.Context, prog *Progress, block *Block, err error, d time.Duration) {
	// Only count successful executions for average duration.
	if err == nil {
		m.blocksExecuted.Add(1)
		m.totalBlockTime.Add(d.Nanoseconds())
	}
}

func (m *BasicMetrics) OnRetryScheduled(ctx context.Context, prog *Progress, block *Block, nextAt time.Time) {
	m.retries.Add(1)
}

func (m *BasicMetrics) OnProgressFinished(ctx context.Context, prog *Progress) {
	switch prog.Status {
	case ProgressCompleted:
		m.completed.Add(1)
	case ProgressExited:
		m.exited.Add(1)
	case ProgressGoalReached:
		m.goalsReached.Add(1)
	case ProgressFailed:
		m.failed.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	enrolled := m.enrolled.Load()
	completed := m.completed.Load()
	exited := m.exited.Load()
	goals := m.goalsReached.Load()
	failed := m.failed.Load()
	blocks := m.blocksExecuted.Load()
	totalNs := m.totalBlockTime.Load()

	var avg time.Duration
	if blocks > 0 {
		avg = time.Duration(totalNs / blocks)
	}

	return BasicMetricsSnapshot{
		Enrolled:         enrolled,
		Completed:        completed,
		Exited:           exited,
		GoalsReached:     goals,
		Failed:           failed,
		InFlight:         enrolled - completed - exited - goals - failed,
		Retries:          m.retries.Load(),
		BlocksExecuted:   blocks,
		AvgBlockDuration: avg,
	}
}
