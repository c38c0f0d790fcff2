package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryQueue_EnqueueDequeueOrder(t *testing.T) {
	q := NewInMemoryQueue(0)

	ctx := context.Background()

	t1 := Task{ID: "1", Type: TaskTypeVisitorEvent, WorkspaceID: "ws-1", VisitorID: "v-1", EventName: "signed_up"}
	t2 := Task{ID: "2", Type: TaskTypeAttributeChange, WorkspaceID: "ws-1", VisitorID: "v-2"}
	t3 := Task{ID: "3", Type: TaskTypeVisitorEvent, WorkspaceID: "ws-1", VisitorID: "v-3", EventName: "order.placed"}

	if err := q.Enqueue(ctx, t1); err != nil {
		t.Fatalf("Enqueue t1 failed: %v", err)
	}
	if err := q.Enqueue(ctx, t2); err != nil {
		t.Fatalf("Enqueue t2 failed: %v", err)
	}
	if err := q.Enqueue(ctx, t3); err != nil {
		t.Fatalf("Enqueue t3 failed: %v", err)
	}

	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	got1, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 1 failed: %v", err)
	}
	got2, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 2 failed: %v", err)
	}
	got3, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 3 failed: %v", err)
	}

	if got1.ID != "1" || got2.ID != "2" || got3.ID != "3" {
		t.Fatalf("unexpected dequeue order: %q, %q, %q", got1.ID, got2.ID, got3.ID)
	}
	if got1.EventName != "signed_up" || got2.Type != TaskTypeAttributeChange {
		t.Fatalf("task fields lost in transit: %+v, %+v", got1, got2)
	}

	if q.Len() != 0 {
		t.Fatalf("expected Len 0 after dequeues, got %d", q.Len())
	}
}

func TestInMemoryQueue_DequeueHonorsContextCancellation(t *testing.T) {
	q := NewInMemoryQueue(0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestInMemoryQueue_EnqueueBlocksWhenFull(t *testing.T) {
	q := NewInMemoryQueue(1)

	ctx := context.Background()
	if err := q.Enqueue(ctx, Task{ID: "1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	blocked, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Enqueue(blocked, Task{ID: "2"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded on full queue, got %v", err)
	}
}
