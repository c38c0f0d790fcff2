package series

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestInMemoryEngineWithObserverAndBasicMetrics verifies that:
//   - NewInMemoryEngineWithOptions wires channels and observer from the
//     public API
//   - BasicMetrics sees expected enrollment/block counts
//   - The builder and enrollment helpers work end-to-end without any
//     external infra.
func TestInMemoryEngineWithObserverAndBasicMetrics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := &BasicMetrics{}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	observer := NewCompositeObserver(
		NewLoggingObserver(logger),
		metrics,
	)

	visitors := NewMemoryVisitorStore()
	visitors.SetAttribute("ws-1", "v-1", "email", "v1@example.com")

	engine := NewInMemoryEngineWithOptions(EngineOptions{
		Visitors: visitors,
		Chat:     NewMemoryChatChannel(),
		Email:    NewMemoryEmailChannel(visitors),
		Observer: observer,
	})

	// Simple 2-block series.
	sr := NewBuilder("inmemory-metrics-series", "ws-1").
		TriggeredByEvent("signed_up").
		Chat("Hi there!").
		Email("Welcome!", "Thanks for signing up.").
		MustApply(ctx, engine)

	require.NoError(t, engine.ActivateSeries(ctx, sr.ID), "activate should succeed")

	res, err := engine.EvaluateEnrollmentForVisitor(ctx, "ws-1", "v-1", TriggerContext{
		Source:    TriggerSourceEvent,
		EventName: "signed_up",
	})
	require.NoError(t, err, "enrollment should succeed")
	require.Equal(t, 1, res.Entered, "visitor should enter the series")

	prog, err := engine.GetProgressForVisitorSeries(ctx, "v-1", sr.ID)
	require.NoError(t, err)
	require.Equal(t, ProgressCompleted, prog.Status, "series should complete immediately")

	snap := metrics.Snapshot()

	require.Equal(t, int64(1), snap.Enrolled, "expected exactly 1 enrollment")
	require.Equal(t, int64(1), snap.Completed, "expected exactly 1 completion")
	require.Equal(t, int64(0), snap.Failed, "expected 0 failures")
	require.Equal(t, int64(0), snap.InFlight, "expected 0 in-flight rows")
	require.Equal(t, int64(2), snap.BlocksExecuted, "expected 2 blocks executed")
}

// TestInMemoryEngineWithNilLoggerObserver ensures that NewLoggingObserver(nil)
// is safe to use (it should fall back to slog.Default or similar behaviour)
// and that NewInMemoryEngineWithObserver drives a wait-only series through
// enrollment, suspension and resume.
func TestInMemoryEngineWithNilLoggerObserver(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := &BasicMetrics{}

	observer := NewCompositeObserver(
		NewLoggingObserver(nil), // should not panic or misbehave
		metrics,
	)

	engine := NewInMemoryEngineWithObserver(observer)

	sr := NewBuilder("nil-logger-series", "ws-1").
		TriggeredByEvent("signed_up").
		WaitForEvent("ready").
		MustApply(ctx, engine)

	require.NoError(t, engine.ActivateSeries(ctx, sr.ID))

	res, err := engine.EvaluateEnrollmentForVisitor(ctx, "ws-1", "v-1", TriggerContext{
		Source:    TriggerSourceEvent,
		EventName: "signed_up",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Entered)

	prog, err := engine.GetProgressForVisitorSeries(ctx, "v-1", sr.ID)
	require.NoError(t, err)
	require.Equal(t, ProgressWaiting, prog.Status)
	require.Equal(t, "ready", prog.WaitEventName)

	resumed, err := engine.ResumeWaitingForEvent(ctx, "ws-1", "v-1", "ready")
	require.NoError(t, err)
	require.Equal(t, 1, resumed.Resumed)

	prog, err = engine.GetProgressForVisitorSeries(ctx, "v-1", sr.ID)
	require.NoError(t, err)
	require.Equal(t, ProgressCompleted, prog.Status)

	snap := metrics.Snapshot()
	require.Equal(t, int64(1), snap.Enrolled)
	require.Equal(t, int64(1), snap.Completed)
	require.Equal(t, int64(0), snap.BlocksExecuted, "wait blocks do not count as executed")
}
