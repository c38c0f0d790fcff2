package worker

import (
	"context"
	"testing"
	"time"

	"github.com/opencom-org/series/internal/taskqueue"
)

// fakeQueue is a minimal Queue implementation that records the last enqueued task.
type fakeQueue struct {
	lastTask      taskqueue.Task
	enqueueCalled bool
	enqueueErr    error
	dequeueResult *taskqueue.Task
	dequeueErr    error
	lenValue      int
}

func (f *fakeQueue) Enqueue(ctx context.Context, t taskqueue.Task) error {
	f.enqueueCalled = true
	f.lastTask = t
	return f.enqueueErr
}

func (f *fakeQueue) Dequeue(ctx context.Context) (*taskqueue.Task, error) {
	return f.dequeueResult, f.dequeueErr
}

func (f *fakeQueue) Len() int {
	return f.lenValue
}

// EnqueueVisitorEventAt should build a task with the expected fields and
// NotBefore set to 'at'.
func TestWorker_EnqueueVisitorEventAt_BuildsTask(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	// engine is unused by EnqueueVisitorEventAt; pass nil.
	w := NewWithConfig(nil, q, Config{})

	at := time.Now().Add(10 * time.Minute)

	if err := w.EnqueueVisitorEventAt(ctx, "ws-42", "v-9", "purchase", at); err != nil {
		t.Fatalf("EnqueueVisitorEventAt returned error: %v", err)
	}

	if !q.enqueueCalled {
		t.Fatalf("expected Enqueue to be called")
	}

	got := q.lastTask
	if got.Type != taskqueue.TaskTypeVisitorEvent {
		t.Fatalf("expected TaskTypeVisitorEvent, got %q", got.Type)
	}
	if got.WorkspaceID != "ws-42" {
		t.Fatalf("expected WorkspaceID=%q, got %q", "ws-42", got.WorkspaceID)
	}
	if got.VisitorID != "v-9" {
		t.Fatalf("expected VisitorID=%q, got %q", "v-9", got.VisitorID)
	}
	if got.EventName != "purchase" {
		t.Fatalf("expected EventName=%q, got %q", "purchase", got.EventName)
	}
	if got.NotBefore != at {
		t.Fatalf("expected NotBefore=%v, got %v", at, got.NotBefore)
	}
	if got.Attempts != 0 {
		t.Fatalf("expected Attempts=0 on a newly enqueued task, got %d", got.Attempts)
	}
	if got.ID == "" {
		t.Fatalf("expected a generated task ID, got empty string")
	}
	if got.EnqueuedAt.IsZero() {
		t.Fatalf("expected EnqueuedAt to be set, got zero value")
	}
}

func TestWorker_EnqueueAttributeChange_BuildsTask(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	w := NewWithConfig(nil, q, Config{})

	if err := w.EnqueueAttributeChange(ctx, "ws-42", "v-9"); err != nil {
		t.Fatalf("EnqueueAttributeChange returned error: %v", err)
	}

	got := q.lastTask
	if got.Type != taskqueue.TaskTypeAttributeChange {
		t.Fatalf("expected TaskTypeAttributeChange, got %q", got.Type)
	}
	if got.WorkspaceID != "ws-42" || got.VisitorID != "v-9" {
		t.Fatalf("unexpected addressing on task: %+v", got)
	}
	if got.EventName != "" {
		t.Fatalf("expected no event name on an attribute task, got %q", got.EventName)
	}
	if !got.NotBefore.IsZero() {
		t.Fatalf("expected zero NotBefore, got %v", got.NotBefore)
	}
}
