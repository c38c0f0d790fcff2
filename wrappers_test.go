package series

import (
	"context"
	"testing"
)

func TestSeries_TopLevelWrappers_EnrollGetListSweepResume(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	// Build a tiny series that parks visitors on an event wait.
	sr := NewBuilder("wrap-test", "ws-1").
		TriggeredByEvent("signed_up").
		WaitForEvent("order.placed").
		MustApply(ctx, eng)

	if err := eng.ActivateSeries(ctx, sr.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	// Enroll via the top-level EvaluateEnrollment wrapper.
	res, err := EvaluateEnrollment(ctx, eng, "ws-1", "v-1", TriggerContext{
		Source:    TriggerSourceEvent,
		EventName: "signed_up",
	})
	if err != nil {
		t.Fatalf("enrollment failed: %v", err)
	}
	if res.Entered != 1 {
		t.Fatalf("expected 1 entered series, got %d", res.Entered)
	}

	// After enrollment, the visitor should be parked on the event wait.
	prog, err := GetProgress(ctx, eng, "v-1", sr.ID)
	if err != nil {
		t.Fatalf("get progress failed: %v", err)
	}
	if prog.Status != ProgressWaiting {
		t.Fatalf("expected waiting status, got: %s", prog.Status)
	}

	// ListProgress wrapper with filters.
	lst, err := ListProgress(ctx, eng, ProgressListOptions{SeriesID: sr.ID, Status: ProgressWaiting})
	if err != nil || len(lst) != 1 {
		t.Fatalf("expected to list one waiting row: %v len=%d", err, len(lst))
	}

	// Sweep should be harmless when nothing is due.
	if sres, err := Sweep(ctx, eng, 0, 0); err != nil || sres.Processed != 0 {
		t.Fatalf("sweep on healthy engine: processed=%d err=%v", sres.Processed, err)
	}

	// Deliver the awaited event; the row should complete.
	rres, err := ResumeForEvent(ctx, eng, "ws-1", "v-1", "order.placed")
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if rres.Matched != 1 || rres.Resumed != 1 {
		t.Fatalf("expected 1 matched and resumed, got %+v", rres)
	}

	after, err := GetProgress(ctx, eng, "v-1", sr.ID)
	if err != nil {
		t.Fatalf("get progress after resume failed: %v", err)
	}
	if after.Status != ProgressCompleted {
		t.Fatalf("expected completed, got %s", after.Status)
	}

	// AuditTrail wrapper should show the row's history.
	trail, err := AuditTrail(ctx, eng, after.ID)
	if err != nil || len(trail) == 0 {
		t.Fatalf("expected audit trail: %v len=%d", err, len(trail))
	}
}

func TestSeries_QueuesAndWorkers_Constructors(t *testing.T) {
	eng := NewInMemoryEngine()
	q := NewInMemoryQueue(16)
	if q == nil {
		t.Fatalf("queue is nil")
	}
	w := NewWorker(eng, q)
	if w == nil {
		t.Fatalf("worker is nil")
	}
	// Also exercise NewWorkerWithConfig path using supported fields.
	w2 := NewWorkerWithConfig(eng, q, WorkerConfig{MaxAttempts: 2, RatePerSecond: 100})
	if w2 == nil {
		t.Fatalf("worker2 is nil")
	}
}
