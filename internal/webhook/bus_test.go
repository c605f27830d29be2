package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

type fakeSubscribers struct {
	subs []model.WebhookEndpoint
}

func (f *fakeSubscribers) FindSubscribers(_ context.Context, _ uint64, eventType string) ([]model.WebhookEndpoint, error) {
	var out []model.WebhookEndpoint
	for _, e := range f.subs {
		if e.IsActive && e.SubscribedTo(eventType) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeSink struct {
	jobs []model.DeliveryJob
	fail map[uint64]bool
}

func (f *fakeSink) Enqueue(_ context.Context, job model.DeliveryJob) error {
	if f.fail[job.EndpointID] {
		return errors.New("partition full")
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func TestBusFanOut(t *testing.T) {
	subs := &fakeSubscribers{subs: []model.WebhookEndpoint{
		{ID: 1, IsActive: true, Events: []string{"booking.updated"}},
		{ID: 2, IsActive: true, Events: []string{"booking.*"}},
		{ID: 3, IsActive: true, Events: []string{"payment.completed"}},
		{ID: 4, IsActive: false, Events: []string{"booking.updated"}},
	}}
	sink := &fakeSink{}
	bus := NewBus(subs, sink, nil)

	err := bus.Publish(context.Background(), model.Event{
		Type:       "booking.updated",
		TenantID:   9,
		OccurredAt: time.Unix(1700000000, 0).UTC(),
		Body:       map[string]interface{}{"booking_id": float64(1)},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sink.jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(sink.jobs))
	}
	seen := map[uint64]bool{}
	for _, job := range sink.jobs {
		seen[job.EndpointID] = true
		if job.TenantID != 9 || job.EventType != "booking.updated" {
			t.Errorf("job fields wrong: %+v", job)
		}
		if job.ID == "" || job.Attempt != 0 {
			t.Errorf("job identity/attempt wrong: %+v", job)
		}
		if !job.EventTimestamp.Equal(time.Unix(1700000000, 0).UTC()) {
			t.Errorf("event timestamp not preserved: %v", job.EventTimestamp)
		}
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("wrong subscriber set: %v", seen)
	}
}

func TestBusAppliesPayloadFilters(t *testing.T) {
	subs := &fakeSubscribers{subs: []model.WebhookEndpoint{
		{ID: 1, IsActive: true, Events: []string{"booking.updated"}, Filter: model.EndpointFilter{
			Enabled: true,
			Conditions: []model.FilterCondition{
				{Field: "amount", Operator: OpGreaterThan, Value: float64(1000)},
			},
		}},
		{ID: 2, IsActive: true, Events: []string{"booking.updated"}},
	}}
	sink := &fakeSink{}
	bus := NewBus(subs, sink, nil)

	err := bus.Publish(context.Background(), model.Event{
		Type:     "booking.updated",
		TenantID: 9,
		Body:     map[string]interface{}{"amount": float64(500)},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sink.jobs) != 1 || sink.jobs[0].EndpointID != 2 {
		t.Fatalf("filter not applied: %+v", sink.jobs)
	}
}

func TestBusPartialEnqueueFailure(t *testing.T) {
	subs := &fakeSubscribers{subs: []model.WebhookEndpoint{
		{ID: 1, IsActive: true, Events: []string{"booking.updated"}},
		{ID: 2, IsActive: true, Events: []string{"booking.updated"}},
	}}
	sink := &fakeSink{fail: map[uint64]bool{1: true}}
	bus := NewBus(subs, sink, nil)

	err := bus.Publish(context.Background(), model.Event{
		Type:     "booking.updated",
		TenantID: 9,
		Body:     map[string]interface{}{},
	})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	// The healthy endpoint still got its job.
	if len(sink.jobs) != 1 || sink.jobs[0].EndpointID != 2 {
		t.Fatalf("surviving endpoint skipped: %+v", sink.jobs)
	}
}
