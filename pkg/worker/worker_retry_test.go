package worker

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opencom-org/series/internal/engine"
	"github.com/opencom-org/series/internal/taskqueue"
	"github.com/opencom-org/series/pkg/api"
)

// flakyEngine wraps a real engine and fails the first 'failures' enrollment
// evaluations with a store-style error.
type flakyEngine struct {
	api.Engine
	failures int32
	calls    int32
}

func (e *flakyEngine) EvaluateEnrollmentForVisitor(ctx context.Context, workspaceID, visitorID string, trigger api.TriggerContext) (api.EnrollmentResult, error) {
	n := atomic.AddInt32(&e.calls, 1)
	if n <= atomic.LoadInt32(&e.failures) {
		return api.EnrollmentResult{}, errors.New("store offline")
	}
	return e.Engine.EvaluateEnrollmentForVisitor(ctx, workspaceID, visitorID, trigger)
}

func TestWorker_TaskRetriesWithBackoffAndScheduling(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	eng, err := engine.NewSQLiteEngine(db)
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("NewSQLiteQueue failed: %v", err)
	}

	backoff := 30 * time.Millisecond
	flaky := &flakyEngine{Engine: eng, failures: 1}

	w := NewWithConfig(flaky, queue, Config{
		MaxAttempts: 3,
		Backoff:     backoff,
	})

	sr := activeSeries(t, flaky, "profile-nudge", api.EntryTrigger{
		Source: api.TriggerSourceAttribute,
	})

	ctx := context.Background()
	if err := w.EnqueueAttributeChange(ctx, testWS, "v-1"); err != nil {
		t.Fatalf("EnqueueAttributeChange failed: %v", err)
	}

	start := time.Now()

	// First processing: the store fails, so the task is rescheduled
	// instead of surfacing the error.
	processed, err := w.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("first ProcessOne returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected first task to be processed")
	}
	if got := atomic.LoadInt32(&flaky.calls); got != 1 {
		t.Fatalf("expected 1 engine call after first attempt, got %d", got)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected the retry task to be queued, got Len=%d", queue.Len())
	}

	// Immediately processing again should block until the scheduled retry is due.
	processed, err = w.ProcessOne(ctx)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("second ProcessOne returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected second task to be processed")
	}
	if got := atomic.LoadInt32(&flaky.calls); got != 2 {
		t.Fatalf("expected 2 engine calls after retry, got %d", got)
	}

	rows := listProgress(t, flaky, sr.ID)
	if len(rows) != 1 || rows[0].Status != api.ProgressCompleted {
		t.Fatalf("expected 1 completed progress row after retry, got %+v", rows)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected an empty queue after success, got Len=%d", queue.Len())
	}

	// Rough check: total elapsed time should be at least around one backoff interval.
	if elapsed < backoff/2 {
		t.Fatalf("expected elapsed >= %v/2, got %v", backoff, elapsed)
	}
}

func TestWorker_TaskRetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyEngine{Engine: inMemoryEngine(t), failures: 99}
	queue := taskqueue.NewInMemoryQueue(10)

	w := NewWithConfig(flaky, queue, Config{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	})

	if err := w.EnqueueAttributeChange(ctx, testWS, "v-1"); err != nil {
		t.Fatalf("EnqueueAttributeChange failed: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("first ProcessOne returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected first task to be processed")
	}

	processed, err = w.ProcessOne(ctx)
	if !processed {
		t.Fatalf("expected second task to be processed")
	}
	if err == nil {
		t.Fatalf("expected the exhausted task to surface its error")
	}
	if !strings.Contains(err.Error(), "store offline") {
		t.Fatalf("expected the handler error, got: %v", err)
	}

	if got := atomic.LoadInt32(&flaky.calls); got != 2 {
		t.Fatalf("expected 2 engine calls, got %d", got)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected no further retries queued, got Len=%d", queue.Len())
	}
}

func TestWorker_NoRetriesByDefault(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyEngine{Engine: inMemoryEngine(t), failures: 1}
	queue := taskqueue.NewInMemoryQueue(10)

	w := New(flaky, queue)

	if err := w.EnqueueAttributeChange(ctx, testWS, "v-1"); err != nil {
		t.Fatalf("EnqueueAttributeChange failed: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if !processed {
		t.Fatalf("expected the task to be processed")
	}
	if err == nil || !strings.Contains(err.Error(), "store offline") {
		t.Fatalf("expected the handler error to surface, got: %v", err)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected no retry to be queued, got Len=%d", queue.Len())
	}
}
