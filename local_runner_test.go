package series

import (
	"context"
	"testing"
	"time"
)

// TestLocalRunner_SyncAndAsync verifies that LocalRunner can evaluate
// enrollment both synchronously (direct Engine call) and asynchronously via
// TrackEventAsync + worker loop.
func TestLocalRunner_SyncAndAsync(t *testing.T) {
	runner := NewLocalRunner()
	ctx := context.Background()

	sr := NewBuilder("localrunner-sync-async", "ws-1").
		TriggeredByEvent("signed_up").
		Chat("Welcome aboard!").
		MustApply(ctx, runner.Engine)

	if err := runner.Engine.ActivateSeries(ctx, sr.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	// --- Synchronous enrollment ---

	res, err := EvaluateEnrollment(ctx, runner.Engine, "ws-1", "v-sync", TriggerContext{
		Source:    TriggerSourceEvent,
		EventName: "signed_up",
	})
	if err != nil {
		t.Fatalf("sync enrollment failed: %v", err)
	}
	if res.Entered != 1 {
		t.Fatalf("expected 1 entered series, got %d", res.Entered)
	}

	syncProg, err := GetProgress(ctx, runner.Engine, "v-sync", sr.ID)
	if err != nil {
		t.Fatalf("get sync progress failed: %v", err)
	}
	if syncProg.Status != ProgressCompleted {
		t.Fatalf("expected sync progress completed, got %v", syncProg.Status)
	}

	// --- Asynchronous enrollment via worker/queue ---

	if err := runner.StartWorkers(ctx, 2); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	if err := runner.TrackEventAsync(ctx, "ws-1", "v-async", "signed_up"); err != nil {
		t.Fatalf("TrackEventAsync failed: %v", err)
	}

	// Poll for the async progress to appear and complete.
	deadline := time.Now().Add(2 * time.Second)
	var asyncProg *Progress

	for time.Now().Before(deadline) {
		rows, err := ListProgress(ctx, runner.Engine, ProgressListOptions{SeriesID: sr.ID, VisitorID: "v-async"})
		if err != nil {
			t.Fatalf("ListProgress failed: %v", err)
		}

		for _, row := range rows {
			if row.Status == ProgressCompleted {
				asyncProg = row
				break
			}
		}

		if asyncProg != nil {
			break
		}

		time.Sleep(10 * time.Millisecond)
	}

	if asyncProg == nil {
		t.Fatalf("did not observe completed async progress before timeout")
	}
}

// TestLocalRunner_StartWorkersTwice ensures that StartWorkers cannot be
// called twice without Stop in between.
func TestLocalRunner_StartWorkersTwice(t *testing.T) {
	runner := NewLocalRunner()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer runner.Stop()

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("first StartWorkers failed: %v", err)
	}

	if err := runner.StartWorkers(ctx, 1); err == nil {
		t.Fatalf("expected error from second StartWorkers call, got nil")
	}
}

// TestLocalRunner_StopWithoutStart ensures Stop is safe when workers were
// never started.
func TestLocalRunner_StopWithoutStart(t *testing.T) {
	runner := NewLocalRunner()
	// Should not panic or deadlock.
	runner.Stop()
}

// TestLocalRunner_EventResumeAsync verifies that a visitor parked on an
// event wait resumes when the awaited event is tracked asynchronously.
func TestLocalRunner_EventResumeAsync(t *testing.T) {
	runner := NewLocalRunner()
	ctx := context.Background()

	sr := NewBuilder("localrunner-resume", "ws-1").
		TriggeredByEvent("signed_up").
		WaitForEvent("go").
		Chat("You made it.").
		MustApply(ctx, runner.Engine)

	if err := runner.Engine.ActivateSeries(ctx, sr.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	if err := runner.TrackEventAsync(ctx, "ws-1", "v-1", "signed_up"); err != nil {
		t.Fatalf("TrackEventAsync failed: %v", err)
	}

	// Poll for the progress row to park on the event wait.
	var waiting *Progress
	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		row, err := GetProgress(ctx, runner.Engine, "v-1", sr.ID)
		if err == nil && row.Status == ProgressWaiting {
			waiting = row
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if waiting == nil {
		t.Fatalf("expected to find a waiting progress row before timeout")
	}

	// Deliver the awaited event asynchronously.
	if err := runner.TrackEventAsync(ctx, "ws-1", "v-1", "go"); err != nil {
		t.Fatalf("TrackEventAsync for awaited event failed: %v", err)
	}

	// Poll for the same row to complete.
	var completed *Progress
	deadline = time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		row, err := GetProgress(ctx, runner.Engine, "v-1", sr.ID)
		if err == nil && row.ID == waiting.ID && row.Status == ProgressCompleted {
			completed = row
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if completed == nil {
		t.Fatalf("expected progress %s to complete after event, but it did not", waiting.ID)
	}
}

// TestLocalRunner_AttributeWriteTriggersEnrollment verifies that writing an
// attribute on the runner's visitor store feeds attribute-triggered series
// without an explicit TrackAttributeChangeAsync call.
func TestLocalRunner_AttributeWriteTriggersEnrollment(t *testing.T) {
	runner := NewLocalRunner()
	ctx := context.Background()

	sr := NewBuilder("localrunner-attr", "ws-1").
		TriggeredByAttributeChange().
		EntryRules(Cond(PropertySystem, "plan", OpEquals, "trial")).
		Chat("Welcome to your trial.").
		MustApply(ctx, runner.Engine)

	if err := runner.Engine.ActivateSeries(ctx, sr.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	runner.Visitors.SetAttribute("ws-1", "v-1", "plan", "trial")

	var completed *Progress
	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		row, err := GetProgress(ctx, runner.Engine, "v-1", sr.ID)
		if err == nil && row.Status == ProgressCompleted {
			completed = row
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if completed == nil {
		t.Fatalf("expected attribute write to enroll and complete the visitor")
	}

	if got := len(runner.Chat.Sent()); got != 1 {
		t.Fatalf("expected exactly 1 chat message, got %d", got)
	}
}

// TestLocalRunner_SweeperResumesDurationWaits verifies that the bundled
// sweeper drives short duration waits to completion without manual sweeps.
func TestLocalRunner_SweeperResumesDurationWaits(t *testing.T) {
	runner := NewLocalRunner()
	ctx := context.Background()

	sr := NewBuilder("localrunner-sweep", "ws-1").
		TriggeredByEvent("signed_up").
		Wait(1, UnitSeconds).
		Chat("One second later.").
		MustApply(ctx, runner.Engine)

	if err := runner.Engine.ActivateSeries(ctx, sr.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	if err := runner.TrackEventAsync(ctx, "ws-1", "v-1", "signed_up"); err != nil {
		t.Fatalf("TrackEventAsync failed: %v", err)
	}

	// The wait becomes due after one second; the sweeper ticks every second.
	var completed *Progress
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		row, err := GetProgress(ctx, runner.Engine, "v-1", sr.ID)
		if err == nil && row.Status == ProgressCompleted {
			completed = row
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if completed == nil {
		t.Fatalf("expected sweeper to complete the duration wait before timeout")
	}
}
