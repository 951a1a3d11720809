package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryQueue_EnqueueDequeueOrder(t *testing.T) {
	q := NewInMemoryQueue(10)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if err := q.Enqueue(ctx, Task{ID: id, Command: "hydro"}); err != nil {
			t.Fatalf("Enqueue %s failed: %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	var got []string
	for i := 0; i < 3; i++ {
		task, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue %d failed: %v", i, err)
		}
		got = append(got, task.ID)
	}
	if got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Fatalf("unexpected dequeue order: %v", got)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestInMemoryQueue_CloseDrainsThenReportsClosed(t *testing.T) {
	q := NewInMemoryQueue(2)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Task{ID: "a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	q.Close()
	q.Close()

	if err := q.Enqueue(ctx, Task{ID: "b"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on enqueue after close, got %v", err)
	}

	task, err := q.Dequeue(ctx)
	if err != nil || task.ID != "a" {
		t.Fatalf("expected queued task a, got %v, %v", task, err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed once drained, got %v", err)
	}
}

func TestInMemoryQueue_DequeueRespectsContext(t *testing.T) {
	q := NewInMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInMemoryQueue_DefaultCapacity(t *testing.T) {
	q := NewInMemoryQueue(0)
	if cap(q.ch) != 1024 {
		t.Fatalf("expected default capacity 1024, got %d", cap(q.ch))
	}
}
