package engine

import (
	"context"
	"testing"

	"github.com/opencom-org/series/pkg/api"
)

// branchRig builds a series where block a fans out to b (branch) and c
// (default) and returns all three blocks.
func branchRig(t *testing.T, rig *testRig, condition string) (sr *api.Series, a, b, c *api.Block) {
	t.Helper()
	ctx := context.Background()

	sr = rig.createSeries(t, "branching")
	a = rig.addChat(t, sr.ID, "root")
	b = rig.addChat(t, sr.ID, "branch")
	c = rig.addChat(t, sr.ID, "default")

	if err := rig.eng.AddConnection(ctx, sr.ID, api.Connection{
		FromBlockID: a.ID,
		ToBlockID:   b.ID,
		Condition:   condition,
	}); err != nil {
		t.Fatalf("AddConnection(branch) failed: %v", err)
	}
	rig.connect(t, sr.ID, a.ID, c.ID)
	rig.activate(t, sr.ID)
	return sr, a, b, c
}

func sentBodies(rig *testRig) []string {
	var bodies []string
	for _, m := range rig.chat.Sent() {
		bodies = append(bodies, m.Msg.Body)
	}
	return bodies
}

func TestBranch_AttributeConditionSelectsEdge(t *testing.T) {
	rig := newTestRig(t)
	branchRig(t, rig, `attributes.plan == "pro"`)

	rig.visitors.SetAttribute(testWS, "v-pro", "plan", "pro")
	rig.enrollByEvent(t, "v-pro", "signed_up")

	got := sentBodies(rig)
	if len(got) != 2 || got[0] != "root" || got[1] != "branch" {
		t.Fatalf("expected root then branch, got %v", got)
	}
}

func TestBranch_FallsThroughToDefault(t *testing.T) {
	rig := newTestRig(t)
	branchRig(t, rig, `attributes.plan == "pro"`)

	rig.visitors.SetAttribute(testWS, "v-free", "plan", "free")
	rig.enrollByEvent(t, "v-free", "signed_up")

	got := sentBodies(rig)
	if len(got) != 2 || got[1] != "default" {
		t.Fatalf("expected root then default, got %v", got)
	}
}

func TestBranch_MalformedConditionFallsThroughToDefault(t *testing.T) {
	rig := newTestRig(t)
	branchRig(t, rig, `attributes.plan ==`)

	rig.enrollByEvent(t, "v-1", "signed_up")

	got := sentBodies(rig)
	if len(got) != 2 || got[1] != "default" {
		t.Fatalf("a broken condition must never match, got %v", got)
	}
}

func TestBranch_NonBooleanConditionFallsThroughToDefault(t *testing.T) {
	rig := newTestRig(t)
	branchRig(t, rig, `attributes.plan`)

	rig.visitors.SetAttribute(testWS, "v-1", "plan", "pro")
	rig.enrollByEvent(t, "v-1", "signed_up")

	got := sentBodies(rig)
	if len(got) != 2 || got[1] != "default" {
		t.Fatalf("a non-boolean condition must never match, got %v", got)
	}
}

func TestBranch_OutcomeConditionSeesSent(t *testing.T) {
	rig := newTestRig(t)
	branchRig(t, rig, `outcome == "sent"`)

	rig.enrollByEvent(t, "v-1", "signed_up")

	got := sentBodies(rig)
	if len(got) != 2 || got[1] != "branch" {
		t.Fatalf("expected the sent outcome to match, got %v", got)
	}
}

func TestBranch_NoDefaultAndNoMatchCompletes(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sr := rig.createSeries(t, "dead-end")
	a := rig.addChat(t, sr.ID, "root")
	b := rig.addChat(t, sr.ID, "never")
	if err := rig.eng.AddConnection(ctx, sr.ID, api.Connection{
		FromBlockID: a.ID,
		ToBlockID:   b.ID,
		Condition:   `attributes.plan == "pro"`,
	}); err != nil {
		t.Fatalf("AddConnection failed: %v", err)
	}
	rig.activate(t, sr.ID)

	rig.enrollByEvent(t, "v-1", "signed_up")

	if got := sentBodies(rig); len(got) != 1 {
		t.Fatalf("expected only root, got %v", got)
	}
	p := rig.progressFor(t, "v-1", sr.ID)
	if p.Status != api.ProgressCompleted {
		t.Fatalf("expected completed, got %q", p.Status)
	}
}
