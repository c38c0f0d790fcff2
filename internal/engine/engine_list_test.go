package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/opencom-org/series/pkg/api"
)

func TestListSeries_Filters(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	a := rig.createSeries(t, "a")
	rig.createSeries(t, "b")
	rig.activate(t, a.ID)

	if _, err := rig.eng.CreateSeries(ctx, api.Series{
		WorkspaceID:   "ws-other",
		Name:          "c",
		EntryTriggers: []api.EntryTrigger{{Source: api.TriggerSourceAttribute}},
	}); err != nil {
		t.Fatalf("CreateSeries failed: %v", err)
	}

	all, err := rig.eng.ListSeries(ctx, api.SeriesListOptions{})
	if err != nil {
		t.Fatalf("ListSeries failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 series, got %d", len(all))
	}

	ws, err := rig.eng.ListSeries(ctx, api.SeriesListOptions{WorkspaceID: testWS})
	if err != nil {
		t.Fatalf("ListSeries failed: %v", err)
	}
	if len(ws) != 2 {
		t.Fatalf("expected 2 series in %s, got %d", testWS, len(ws))
	}

	active, err := rig.eng.ListSeries(ctx, api.SeriesListOptions{WorkspaceID: testWS, Status: api.SeriesActive})
	if err != nil {
		t.Fatalf("ListSeries failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("expected only the active series, got %+v", active)
	}
}

func TestListProgress_Filters(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sr := rig.createSeries(t, "s")
	rig.addEventWait(t, sr.ID, "purchase")
	rig.activate(t, sr.ID)

	rig.enrollByEvent(t, "v-1", "signed_up")
	rig.enrollByEvent(t, "v-2", "signed_up")
	rig.resumeByEvent(t, "v-1", "purchase")

	waiting, err := rig.eng.ListProgress(ctx, api.ProgressListOptions{SeriesID: sr.ID, Status: api.ProgressWaiting})
	if err != nil {
		t.Fatalf("ListProgress failed: %v", err)
	}
	if len(waiting) != 1 || waiting[0].VisitorID != "v-2" {
		t.Fatalf("expected v-2 waiting, got %+v", waiting)
	}

	completed, err := rig.eng.ListProgress(ctx, api.ProgressListOptions{SeriesID: sr.ID, Status: api.ProgressCompleted})
	if err != nil {
		t.Fatalf("ListProgress failed: %v", err)
	}
	if len(completed) != 1 || completed[0].VisitorID != "v-1" {
		t.Fatalf("expected v-1 completed, got %+v", completed)
	}

	byVisitor, err := rig.eng.ListProgress(ctx, api.ProgressListOptions{WorkspaceID: testWS, VisitorID: "v-1"})
	if err != nil {
		t.Fatalf("ListProgress failed: %v", err)
	}
	if len(byVisitor) != 1 {
		t.Fatalf("expected 1 row for v-1, got %d", len(byVisitor))
	}
}

func TestGetProgressForVisitorSeries_NotFound(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.eng.GetProgressForVisitorSeries(context.Background(), "v-x", "s-x")
	if !errors.Is(err, api.ErrProgressNotFound) {
		t.Fatalf("expected ErrProgressNotFound, got %v", err)
	}
}

func TestAuditTrail_RecordsSuspensionsAndResumes(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sr := rig.createSeries(t, "s")
	wait := rig.addEventWait(t, sr.ID, "purchase")
	done := rig.addChat(t, sr.ID, "thanks")
	rig.connect(t, sr.ID, wait.ID, done.ID)
	rig.activate(t, sr.ID)

	rig.enrollByEvent(t, "v-1", "signed_up")
	rig.resumeByEvent(t, "v-1", "purchase")

	p := rig.progressFor(t, "v-1", sr.ID)
	trail, err := rig.eng.AuditTrail(ctx, p.ID)
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}

	wantTypes := []api.AuditEventType{
		api.AuditProgressEnrolled,
		api.AuditWaitScheduled,
		api.AuditProgressResumed,
		api.AuditBlockExecuted,
		api.AuditProgressCompleted,
	}
	if len(trail) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(trail), trail)
	}
	for i, want := range wantTypes {
		if trail[i].Type != want {
			t.Fatalf("trail[%d] = %q, want %q", i, trail[i].Type, want)
		}
	}
	if trail[1].BlockID != wait.ID {
		t.Fatalf("wait event should carry the block: %+v", trail[1])
	}
	if trail[2].Detail != "event purchase" {
		t.Fatalf("resume detail = %q", trail[2].Detail)
	}
}
