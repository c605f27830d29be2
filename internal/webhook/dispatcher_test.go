package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
	"github.com/stayops/ota-bridge/internal/queue"
	"github.com/stayops/ota-bridge/internal/repository"
)

type fakeEndpoints struct {
	mu        sync.Mutex
	endpoints map[uint64]*model.WebhookEndpoint
	outcomes  []model.DeliveryOutcome
}

func (f *fakeEndpoints) GetByID(_ context.Context, id uint64) (*model.WebhookEndpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.endpoints[id]
	if !ok {
		return nil, repository.ErrEndpointNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEndpoints) RecordDelivery(_ context.Context, _ uint64, outcome model.DeliveryOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *fakeEndpoints) recorded() []model.DeliveryOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.DeliveryOutcome, len(f.outcomes))
	copy(out, f.outcomes)
	return out
}

type fakeJobLog struct {
	mu      sync.Mutex
	deleted []string
	retries []int
	pending []model.DeliveryJob
}

func (f *fakeJobLog) MarkRetry(_ context.Context, _ string, attempt int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, attempt)
	return nil
}

func (f *fakeJobLog) DeleteJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, jobID)
	return nil
}

func (f *fakeJobLog) ListPending(_ context.Context) ([]model.DeliveryJob, error) {
	return f.pending, nil
}

func (f *fakeJobLog) RecordAttempt(_ context.Context, _ model.DeliveryJob, _ model.DeliveryOutcome) error {
	return nil
}

func (f *fakeJobLog) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func fastEndpoint(id uint64, url string) *model.WebhookEndpoint {
	return &model.WebhookEndpoint{
		ID:       id,
		TenantID: 1,
		URL:      url,
		Events:   []string{"booking.*"},
		IsActive: true,
		Secret:   "whsec_test",
		Method:   http.MethodPost,
		Timeout:  2 * time.Second,
		Retry: model.RetryPolicy{
			Enabled:           true,
			MaxRetries:        3,
			InitialDelay:      5 * time.Millisecond,
			MaxDelay:          20 * time.Millisecond,
			BackoffMultiplier: 2,
			RetryOn:           []string{model.ErrClassTimeout, model.ErrClassConnection, model.ErrClassHTTP5xx},
		},
	}
}

func testJob(id string, endpointID uint64) model.DeliveryJob {
	return model.DeliveryJob{
		ID:             id,
		EndpointID:     endpointID,
		TenantID:       1,
		EventType:      "booking.updated",
		Payload:        map[string]interface{}{"booking_id": float64(7)},
		EventTimestamp: time.Unix(1700000000, 0).UTC(),
		FirstAttemptAt: time.Now().UTC(),
	}
}

func runDispatcher(t *testing.T, eps *fakeEndpoints, jobs *fakeJobLog, submit ...model.DeliveryJob) {
	t.Helper()
	q := queue.NewPartitioned(2, 16)
	d := NewDispatcher(eps, jobs, q, &http.Client{}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Start(ctx)
	for _, job := range submit {
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	q.Close()
	d.Wait()
}

func TestDispatcherSignsDeliveries(t *testing.T) {
	type received struct {
		signature string
		timestamp string
		event     string
		attempt   string
		body      []byte
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			signature: r.Header.Get("X-Signature"),
			timestamp: r.Header.Get("X-Timestamp"),
			event:     r.Header.Get("X-Event"),
			attempt:   r.Header.Get("X-Attempt"),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eps := &fakeEndpoints{endpoints: map[uint64]*model.WebhookEndpoint{1: fastEndpoint(1, srv.URL)}}
	jobs := &fakeJobLog{}
	runDispatcher(t, eps, jobs, testJob("dlv_sign", 1))

	select {
	case r := <-got:
		if r.event != "booking.updated" {
			t.Errorf("X-Event = %q", r.event)
		}
		if r.attempt != "0" {
			t.Errorf("X-Attempt = %q", r.attempt)
		}
		if r.timestamp != "1700000000" {
			t.Errorf("X-Timestamp = %q", r.timestamp)
		}
		if !VerifySignature("whsec_test", r.timestamp, r.body, r.signature) {
			t.Error("delivered signature does not verify")
		}
	default:
		t.Fatal("no delivery received")
	}

	if ids := jobs.deletedIDs(); len(ids) != 1 || ids[0] != "dlv_sign" {
		t.Fatalf("job not finished: %v", ids)
	}
	outs := eps.recorded()
	if len(outs) != 1 || !outs[0].Success || outs[0].StatusCode != 200 {
		t.Fatalf("unexpected outcomes: %+v", outs)
	}
}

func TestDispatcherRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eps := &fakeEndpoints{endpoints: map[uint64]*model.WebhookEndpoint{1: fastEndpoint(1, srv.URL)}}
	jobs := &fakeJobLog{}
	runDispatcher(t, eps, jobs, testJob("dlv_retry", 1))

	mu.Lock()
	total := calls
	mu.Unlock()
	if total != 3 {
		t.Fatalf("expected 3 attempts, got %d", total)
	}
	outs := eps.recorded()
	if len(outs) != 3 {
		t.Fatalf("expected 3 recorded outcomes, got %d", len(outs))
	}
	for i := 0; i < 2; i++ {
		if outs[i].Success || outs[i].ErrorClass != model.ErrClassHTTP5xx {
			t.Errorf("attempt %d: %+v", i, outs[i])
		}
	}
	if !outs[2].Success {
		t.Errorf("final attempt should succeed: %+v", outs[2])
	}
	if len(jobs.retries) != 2 {
		t.Errorf("expected 2 retry markers, got %d", len(jobs.retries))
	}
}

func TestDispatcherDoesNotRetryClientErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	eps := &fakeEndpoints{endpoints: map[uint64]*model.WebhookEndpoint{1: fastEndpoint(1, srv.URL)}}
	jobs := &fakeJobLog{}
	runDispatcher(t, eps, jobs, testJob("dlv_4xx", 1))

	mu.Lock()
	total := calls
	mu.Unlock()
	if total != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", total)
	}
	if ids := jobs.deletedIDs(); len(ids) != 1 {
		t.Fatalf("job should still be finished, deleted: %v", ids)
	}
}

func TestDispatcherDropsInactiveEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inactive endpoint must not be called")
	}))
	defer srv.Close()

	e := fastEndpoint(1, srv.URL)
	e.IsActive = false
	eps := &fakeEndpoints{endpoints: map[uint64]*model.WebhookEndpoint{1: e}}
	jobs := &fakeJobLog{}
	runDispatcher(t, eps, jobs, testJob("dlv_inactive", 1))

	if ids := jobs.deletedIDs(); len(ids) != 1 {
		t.Fatalf("dropped job must be removed from the durable log, got %v", ids)
	}
}

func TestDispatcherPreservesPerEndpointOrder(t *testing.T) {
	var mu sync.Mutex
	firstFailed := false
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Delivery-Id")
		mu.Lock()
		defer mu.Unlock()
		// Fail the first job once so its retry must still land before
		// the second job's first attempt.
		if id == "dlv_first" && !firstFailed {
			firstFailed = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		order = append(order, id)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eps := &fakeEndpoints{endpoints: map[uint64]*model.WebhookEndpoint{1: fastEndpoint(1, srv.URL)}}
	jobs := &fakeJobLog{}
	runDispatcher(t, eps, jobs, testJob("dlv_first", 1), testJob("dlv_second", 1))

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "dlv_first" || order[1] != "dlv_second" {
		t.Fatalf("second delivery overtook a retrying first: %v", order)
	}
}

func TestDispatcherRequeue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eps := &fakeEndpoints{endpoints: map[uint64]*model.WebhookEndpoint{1: fastEndpoint(1, srv.URL)}}
	jobs := &fakeJobLog{pending: []model.DeliveryJob{testJob("dlv_recovered", 1)}}

	q := queue.NewPartitioned(2, 4)
	d := NewDispatcher(eps, jobs, q, &http.Client{}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Requeue(ctx); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	d.Start(ctx)
	q.Close()
	d.Wait()

	if ids := jobs.deletedIDs(); len(ids) != 1 || ids[0] != "dlv_recovered" {
		t.Fatalf("recovered job not delivered: %v", ids)
	}
}

func TestDispatcherFallbackTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := fastEndpoint(1, srv.URL)
	ep.Timeout = 0 // no per-endpoint timeout configured
	eps := &fakeEndpoints{endpoints: map[uint64]*model.WebhookEndpoint{1: ep}}
	q := queue.NewPartitioned(1, 4)
	defer q.Close()
	d := NewDispatcher(eps, &fakeJobLog{}, q, &http.Client{}, 30*time.Millisecond)

	outcome := d.attempt(context.Background(), ep, testJob("dlv_slow", 1))
	if outcome.Success {
		t.Fatal("expected the configured fallback timeout to cut the request off")
	}
	if outcome.ErrorClass != model.ErrClassTimeout {
		t.Fatalf("error class = %s, want %s", outcome.ErrorClass, model.ErrClassTimeout)
	}
}
