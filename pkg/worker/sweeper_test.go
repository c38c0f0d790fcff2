package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opencom-org/series/internal/engine"
	"github.com/opencom-org/series/internal/persistence"
	"github.com/opencom-org/series/pkg/api"
)

// sweepClock is a manually advanced time source for the engine under the
// sweeper. The sweeper's own ticker still runs on wall-clock time.
type sweepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSweepClock() *sweepClock {
	return &sweepClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *sweepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *sweepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func clockedEngine(t *testing.T, clock *sweepClock) api.Engine {
	t.Helper()
	store := persistence.NewMemoryStore()
	return engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{Graph: store, Progress: store, Audit: store},
		Clock:       clock.Now,
	})
}

// durationWaitSeries creates an active series whose only block waits one day.
func durationWaitSeries(t *testing.T, eng api.Engine) *api.Series {
	t.Helper()
	ctx := context.Background()

	sr, err := eng.CreateSeries(ctx, api.Series{
		WorkspaceID: testWS,
		Name:        "drip",
		EntryTriggers: []api.EntryTrigger{
			{Source: api.TriggerSourceEvent, EventName: "signed_up"},
		},
	})
	if err != nil {
		t.Fatalf("CreateSeries failed: %v", err)
	}
	_, err = eng.AddBlock(ctx, sr.ID, api.Block{
		Type: api.BlockWait,
		Config: api.BlockConfig{Wait: &api.WaitConfig{
			WaitType: api.WaitDuration,
			Duration: 1,
			Unit:     api.UnitDays,
		}},
	})
	if err != nil {
		t.Fatalf("AddBlock failed: %v", err)
	}
	if err := eng.ActivateSeries(ctx, sr.ID); err != nil {
		t.Fatalf("ActivateSeries failed: %v", err)
	}
	return sr
}

func enrollVisitor(t *testing.T, eng api.Engine, visitorID string) {
	t.Helper()
	res, err := eng.EvaluateEnrollmentForVisitor(context.Background(), testWS, visitorID, api.TriggerContext{
		Source:    api.TriggerSourceEvent,
		EventName: "signed_up",
	})
	if err != nil {
		t.Fatalf("EvaluateEnrollmentForVisitor failed: %v", err)
	}
	if res.Entered != 1 {
		t.Fatalf("expected 1 enrollment, got %d", res.Entered)
	}
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	clock := newSweepClock()
	eng := clockedEngine(t, clock)
	sr := durationWaitSeries(t, eng)
	enrollVisitor(t, eng, "v-1")

	sw := NewSweeper(eng, SweeperConfig{})

	res, err := sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if res.Processed != 0 {
		t.Fatalf("expected 0 processed before the deadline, got %d", res.Processed)
	}

	clock.Advance(25 * time.Hour)

	res, err = sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("expected 1 processed after the deadline, got %d", res.Processed)
	}

	p, err := eng.GetProgressForVisitorSeries(ctx, "v-1", sr.ID)
	if err != nil {
		t.Fatalf("GetProgressForVisitorSeries failed: %v", err)
	}
	if p.Status != api.ProgressCompleted {
		t.Fatalf("expected completed progress, got %q", p.Status)
	}
}

func TestSweeper_StartProcessesDueWaits(t *testing.T) {
	ctx := context.Background()
	clock := newSweepClock()
	eng := clockedEngine(t, clock)
	sr := durationWaitSeries(t, eng)
	enrollVisitor(t, eng, "v-1")

	sw := NewSweeper(eng, SweeperConfig{Interval: 5 * time.Millisecond})
	if err := sw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sw.Stop()

	clock.Advance(25 * time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for {
		p, err := eng.GetProgressForVisitorSeries(ctx, "v-1", sr.ID)
		if err != nil {
			t.Fatalf("GetProgressForVisitorSeries failed: %v", err)
		}
		if p.Status == api.ProgressCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweeper did not resume the due wait in time; status=%q", p.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweeper_StartTwiceFails(t *testing.T) {
	ctx := context.Background()
	eng := clockedEngine(t, newSweepClock())

	sw := NewSweeper(eng, SweeperConfig{Interval: time.Hour})
	if err := sw.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := sw.Start(ctx); err == nil {
		t.Fatalf("expected second Start to fail while running")
	}

	sw.Stop()

	// After Stop the sweeper can be started again.
	if err := sw.Start(ctx); err != nil {
		t.Fatalf("restart after Stop failed: %v", err)
	}
	sw.Stop()

	// Stop on a stopped sweeper is a no-op.
	sw.Stop()
}
