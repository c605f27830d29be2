// Package queue provides the in-process work queue feeding the webhook
// dispatcher.  Jobs are partitioned by endpoint ID onto a fixed set of
// ordered sub-queues so that deliveries to one endpoint never overtake
// each other while different endpoints proceed concurrently.
package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/stayops/ota-bridge/internal/model"
)

// ErrClosed is returned by Enqueue after Close has been called.
var ErrClosed = errors.New("delivery queue closed")

// Partitioned is a fixed-size set of FIFO sub-queues.  The same
// endpoint always hashes to the same sub-queue, which a single worker
// drains, so per-endpoint ordering holds across retries as well.
//
// The partition channels are never closed: Enqueue may still be
// blocked on a full buffer when Close runs, and closing under a live
// sender would panic.  Shutdown is signalled through done instead.
type Partitioned struct {
	partitions []chan model.DeliveryJob
	done       chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPartitioned creates a queue with the given number of partitions
// and per-partition buffer capacity.  Both values are clamped to at
// least 1.
func NewPartitioned(partitions, capacity int) *Partitioned {
	if partitions < 1 {
		partitions = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	chans := make([]chan model.DeliveryJob, partitions)
	for i := range chans {
		chans[i] = make(chan model.DeliveryJob, capacity)
	}
	return &Partitioned{partitions: chans, done: make(chan struct{})}
}

// Partitions returns the number of sub-queues.
func (q *Partitioned) Partitions() int { return len(q.partitions) }

// Partition exposes the receive side of one sub-queue for a worker.
func (q *Partitioned) Partition(i int) <-chan model.DeliveryJob { return q.partitions[i] }

// Done is closed when the queue shuts down.  Workers select on it
// alongside their partition channel.
func (q *Partitioned) Done() <-chan struct{} { return q.done }

// Enqueue places a job on its endpoint's sub-queue, blocking while the
// partition buffer is full.  It returns ErrClosed once Close has run,
// even for a sender already blocked on a full partition, and the
// context error when ctx is cancelled first.
func (q *Partitioned) Enqueue(ctx context.Context, job model.DeliveryJob) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	part := q.partitions[q.indexFor(job.EndpointID)]
	q.mu.Unlock()

	select {
	case part <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue: blocked and future Enqueue calls return
// ErrClosed, workers drain whatever is already buffered and exit.
// Idempotent.
func (q *Partitioned) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Partitioned) indexFor(endpointID uint64) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatUint(endpointID, 10)))
	return int(h.Sum32() % uint32(len(q.partitions)))
}
