package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
	"github.com/stayops/ota-bridge/internal/queue"
	"github.com/stayops/ota-bridge/internal/repository"
)

// Timeout bounds applied to endpoint configuration at send time.
const (
	defaultTimeout = 30 * time.Second
	maxTimeout     = 300 * time.Second
	minTimeout     = time.Second
)

// EndpointSource is the registry surface the dispatcher needs: load an
// endpoint for each attempt (so deactivation is observed promptly) and
// record the outcome.
type EndpointSource interface {
	GetByID(ctx context.Context, id uint64) (*model.WebhookEndpoint, error)
	RecordDelivery(ctx context.Context, id uint64, outcome model.DeliveryOutcome) error
}

// JobLog is the durable side of job processing.
type JobLog interface {
	MarkRetry(ctx context.Context, jobID string, attempt int, nextAt time.Time) error
	DeleteJob(ctx context.Context, jobID string) error
	ListPending(ctx context.Context) ([]model.DeliveryJob, error)
	RecordAttempt(ctx context.Context, job model.DeliveryJob, outcome model.DeliveryOutcome) error
}

// Dispatcher drains the partitioned queue with one worker per
// partition.  A worker retries a failing job inline, sleeping between
// attempts, so deliveries to one endpoint never overtake each other;
// endpoints on different partitions proceed concurrently.
type Dispatcher struct {
	endpoints EndpointSource
	jobs      JobLog
	queue     *queue.Partitioned
	client    *http.Client
	fallback  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	wg  sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher.  client may be nil, in which
// case a default client without its own timeout is used; per-request
// deadlines come from the endpoint configuration, falling back to
// fallbackTimeout (and then to the package default) when an endpoint
// carries none.
func NewDispatcher(endpoints EndpointSource, jobs JobLog, q *queue.Partitioned, client *http.Client, fallbackTimeout time.Duration) *Dispatcher {
	if endpoints == nil || jobs == nil || q == nil {
		panic("nil dependency passed to NewDispatcher")
	}
	if client == nil {
		client = &http.Client{}
	}
	if fallbackTimeout <= 0 {
		fallbackTimeout = defaultTimeout
	}
	return &Dispatcher{
		endpoints: endpoints,
		jobs:      jobs,
		queue:     q,
		client:    client,
		fallback:  fallbackTimeout,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches one worker per queue partition.  Workers exit when
// the context is cancelled or the queue is closed; Wait blocks until
// they have all drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.queue.Partitions(); i++ {
		part := d.queue.Partition(i)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-d.queue.Done():
					// Drain what is already buffered, then stop.
					for {
						select {
						case job := <-part:
							d.process(ctx, job)
						default:
							return
						}
					}
				case job := <-part:
					d.process(ctx, job)
				}
			}
		}()
	}
}

// Wait blocks until every worker has stopped.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Requeue reloads jobs that were pending when the process last
// stopped and puts them back on the in-process queue.  Call once at
// startup, before Start.
func (d *Dispatcher) Requeue(ctx context.Context) error {
	pending, err := d.jobs.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	for _, job := range pending {
		if err := d.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("requeue job %s: %w", job.ID, err)
		}
	}
	if len(pending) > 0 {
		log.Printf("dispatcher: requeued %d pending deliveries", len(pending))
	}
	return nil
}

// process drives one job to a terminal outcome: attempt, record,
// consult the retry policy, sleep, repeat.  The endpoint row is
// re-loaded before every attempt so deactivation mid-flight drops the
// remaining retries.
func (d *Dispatcher) process(ctx context.Context, job model.DeliveryJob) {
	for {
		e, err := d.endpoints.GetByID(ctx, job.EndpointID)
		if err != nil {
			if !errors.Is(err, repository.ErrEndpointNotFound) {
				log.Printf("dispatcher: load endpoint %d: %v", job.EndpointID, err)
			}
			d.finish(ctx, job)
			return
		}
		if !e.IsActive || !e.SubscribedTo(job.EventType) {
			d.finish(ctx, job)
			return
		}

		outcome := d.attempt(ctx, e, job)
		if err := d.endpoints.RecordDelivery(ctx, e.ID, outcome); err != nil {
			log.Printf("dispatcher: record delivery for endpoint %d: %v", e.ID, err)
		}
		if err := d.jobs.RecordAttempt(ctx, job, outcome); err != nil {
			log.Printf("dispatcher: record attempt for job %s: %v", job.ID, err)
		}
		if outcome.Success {
			d.finish(ctx, job)
			return
		}

		decision := d.nextRetry(e.Retry, job.Attempt, outcome.ErrorClass)
		if decision.GiveUp {
			log.Printf("dispatcher: giving up on job %s after attempt %d (%s)", job.ID, job.Attempt, outcome.ErrorClass)
			d.finish(ctx, job)
			return
		}
		job.Attempt++
		if err := d.jobs.MarkRetry(ctx, job.ID, job.Attempt, time.Now().UTC().Add(decision.RetryAfter)); err != nil {
			log.Printf("dispatcher: mark retry for job %s: %v", job.ID, err)
		}
		// Cancellable sleep: shutdown wakes sleepers promptly and the
		// job stays in the durable store for the next start.
		timer := time.NewTimer(decision.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// attempt performs a single signed HTTP delivery and classifies the
// result.
func (d *Dispatcher) attempt(ctx context.Context, e *model.WebhookEndpoint, job model.DeliveryJob) model.DeliveryOutcome {
	outcome := model.DeliveryOutcome{EventType: job.EventType}
	body, err := json.Marshal(map[string]interface{}{
		"eventType":  job.EventType,
		"occurredAt": job.EventTimestamp.UTC().Format(time.RFC3339),
		"data":       job.Payload,
	})
	if err != nil {
		outcome.ErrorClass = model.ErrClassOther
		outcome.ErrorMessage = "marshal payload: " + err.Error()
		return outcome
	}

	method := e.Method
	if method != http.MethodPut {
		method = http.MethodPost
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = d.fallback
	}
	if timeout < minTimeout {
		timeout = minTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, e.URL, bytes.NewReader(body))
	if err != nil {
		outcome.ErrorClass = model.ErrClassOther
		outcome.ErrorMessage = "build request: " + err.Error()
		return outcome
	}
	contentType := e.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}
	timestamp := strconv.FormatInt(job.EventTimestamp.Unix(), 10)
	req.Header.Set("X-Signature", "sha256="+Sign(e.Secret, timestamp, body))
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Event", job.EventType)
	req.Header.Set("X-Delivery-Id", job.ID)
	req.Header.Set("X-Attempt", strconv.Itoa(job.Attempt))

	start := time.Now()
	resp, err := d.client.Do(req)
	outcome.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		outcome.ErrorClass = classifyTransport(err)
		outcome.ErrorMessage = err.Error()
		return outcome
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	outcome.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome.Success = true
		return outcome
	}
	outcome.ErrorClass = ClassifyStatus(resp.StatusCode)
	outcome.ErrorMessage = "endpoint returned " + resp.Status
	return outcome
}

// finish removes the durable mirror of a job that reached a terminal
// outcome.
func (d *Dispatcher) finish(ctx context.Context, job model.DeliveryJob) {
	if err := d.jobs.DeleteJob(ctx, job.ID); err != nil {
		log.Printf("dispatcher: delete job %s: %v", job.ID, err)
	}
}

// nextRetry serializes access to the shared RNG used for jitter.
func (d *Dispatcher) nextRetry(policy model.RetryPolicy, attempt int, errClass string) RetryDecision {
	d.mu.Lock()
	defer d.mu.Unlock()
	return NextRetry(policy, attempt, errClass, d.rng)
}

// classifyTransport maps a transport-level error to an error class.
// Deadline expiry counts as a timeout; everything else reaching the
// network is a connection error.
func classifyTransport(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ErrClassTimeout
	}
	return model.ErrClassConnection
}
