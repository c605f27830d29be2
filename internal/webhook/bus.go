package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// SubscriberSource matches an event to the endpoints subscribed to it.
type SubscriberSource interface {
	FindSubscribers(ctx context.Context, tenantID uint64, eventType string) ([]model.WebhookEndpoint, error)
}

// JobSink accepts delivery jobs for the dispatcher.
type JobSink interface {
	Enqueue(ctx context.Context, job model.DeliveryJob) error
}

// JobStore is the durable mirror of the in-process queue.  The bus
// inserts a row per enqueued job; the dispatcher removes it on a
// terminal outcome.
type JobStore interface {
	InsertJob(ctx context.Context, job model.DeliveryJob) error
}

// Bus fans booking-lifecycle events out to webhook endpoints.  Publish
// returns once every matching job is durably enqueued; it never blocks
// on the actual HTTP deliveries.
type Bus struct {
	endpoints SubscriberSource
	queue     JobSink
	jobs      JobStore
	now       func() time.Time
}

// NewBus constructs a Bus.  jobs may be nil in tests, in which case
// the durable mirror is skipped.
func NewBus(endpoints SubscriberSource, queue JobSink, jobs JobStore) *Bus {
	if endpoints == nil || queue == nil {
		panic("nil dependency passed to NewBus")
	}
	return &Bus{endpoints: endpoints, queue: queue, jobs: jobs, now: func() time.Time { return time.Now().UTC() }}
}

// Publish matches the event against the tenant's active subscriptions,
// evaluates payload filters, and enqueues one delivery job per match.
// When enqueueing fails for a subset of endpoints the remaining jobs
// are still enqueued and the failures are reported joined; there is no
// in-core retry of the enqueue itself.
func (b *Bus) Publish(ctx context.Context, ev model.Event) error {
	subs, err := b.endpoints.FindSubscribers(ctx, ev.TenantID, ev.Type)
	if err != nil {
		return fmt.Errorf("find subscribers: %w", err)
	}
	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = b.now()
	}
	var failures []error
	for _, sub := range subs {
		if !MatchesFilter(sub.Filter, ev.Body) {
			continue
		}
		job := model.DeliveryJob{
			ID:             newDeliveryID(),
			EndpointID:     sub.ID,
			TenantID:       ev.TenantID,
			EventType:      ev.Type,
			Payload:        ev.Body,
			EventTimestamp: occurredAt,
			FirstAttemptAt: b.now(),
		}
		if b.jobs != nil {
			if err := b.jobs.InsertJob(ctx, job); err != nil {
				failures = append(failures, fmt.Errorf("endpoint %d: persist job: %w", sub.ID, err))
				continue
			}
		}
		if err := b.queue.Enqueue(ctx, job); err != nil {
			failures = append(failures, fmt.Errorf("endpoint %d: enqueue: %w", sub.ID, err))
		}
	}
	if len(failures) > 0 {
		log.Printf("webhook-bus: %d of %d deliveries failed to enqueue for %s", len(failures), len(subs), ev.Type)
		return errors.Join(failures...)
	}
	return nil
}

// newDeliveryID allocates an opaque job identifier carried in the
// X-Delivery-Id header.
func newDeliveryID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("dlv_%d", time.Now().UnixNano())
	}
	return "dlv_" + hex.EncodeToString(buf)
}
