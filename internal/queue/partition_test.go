package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

func TestEnqueueStableAssignment(t *testing.T) {
	q := NewPartitioned(4, 8)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, model.DeliveryJob{ID: "j", EndpointID: 42}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	q.Close()

	// All five jobs must sit on the same partition, in order.
	nonEmpty := 0
	for i := 0; i < q.Partitions(); i++ {
		n := len(q.Partition(i))
		if n > 0 {
			nonEmpty++
			if n != 5 {
				t.Fatalf("partition %d holds %d jobs, want 5", i, n)
			}
		}
	}
	if nonEmpty != 1 {
		t.Fatalf("jobs spread over %d partitions, want 1", nonEmpty)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := NewPartitioned(2, 2)
	q.Close()
	err := q.Enqueue(context.Background(), model.DeliveryJob{EndpointID: 1})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Close is idempotent.
	q.Close()
}

func TestEnqueueBlocksUntilCancel(t *testing.T) {
	q := NewPartitioned(1, 1)
	ctx := context.Background()
	if err := q.Enqueue(ctx, model.DeliveryJob{EndpointID: 1}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(cancelCtx, model.DeliveryJob{EndpointID: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error on full partition, got %v", err)
	}
}

func TestCloseUnblocksPendingEnqueue(t *testing.T) {
	q := NewPartitioned(1, 1)
	ctx := context.Background()
	if err := q.Enqueue(ctx, model.DeliveryJob{EndpointID: 1}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	// Second enqueue blocks on the full partition; Close must release
	// it with ErrClosed rather than panicking on a closed channel.
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(ctx, model.DeliveryJob{EndpointID: 1})
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("blocked enqueue returned %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue never returned after Close")
	}

	// The job buffered before Close stays available for draining.
	if len(q.Partition(0)) != 1 {
		t.Fatalf("buffered jobs = %d, want 1", len(q.Partition(0)))
	}
}

func TestPartitionsClamp(t *testing.T) {
	q := NewPartitioned(0, 0)
	if q.Partitions() != 1 {
		t.Fatalf("expected 1 partition, got %d", q.Partitions())
	}
	if err := q.Enqueue(context.Background(), model.DeliveryJob{EndpointID: 1}); err != nil {
		t.Fatalf("enqueue on clamped queue: %v", err)
	}
}
