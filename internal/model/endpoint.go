package model

import "time"

// Endpoint health classifications derived from recent delivery
// outcomes.  See ComputeHealth for the exact thresholds.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Error classes a delivery outcome falls into.  The retry policy keys
// its retry-on set by these tags; http_4xx and http_5xx carry the
// concrete status code alongside.
const (
	ErrClassTimeout    = "timeout"
	ErrClassConnection = "connection_error"
	ErrClassHTTP4xx    = "4xx"
	ErrClassHTTP5xx    = "5xx"
	ErrClassOther      = "other"
)

// RetryPolicy configures per-endpoint delivery retries.  RetryOn lists
// the error classes that are retried; anything else gives up on the
// first failure.
type RetryPolicy struct {
	Enabled           bool          `json:"enabled"`
	MaxRetries        int           `json:"max_retries"`        // 0..10
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"` // 1..10
	RetryOn           []string      `json:"retry_on"`
}

// DefaultRetryPolicy mirrors what the admin API applies when a new
// endpoint omits the retry block.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:           true,
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2,
		RetryOn:           []string{ErrClassTimeout, ErrClassConnection, ErrClassHTTP5xx},
	}
}

// FilterCondition is a single predicate evaluated against the event
// body.  Field is a dotted path; the operator set is closed (see the
// webhook filter evaluator).
type FilterCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// EndpointFilter gates delivery on the event payload.  When enabled,
// every condition must match for the endpoint to receive the event.
type EndpointFilter struct {
	Enabled    bool              `json:"enabled"`
	Conditions []FilterCondition `json:"conditions,omitempty"`
}

// DeliveryRecord describes the most recent delivery to an endpoint.
type DeliveryRecord struct {
	At             time.Time `json:"at"`
	EventType      string    `json:"event_type"`
	Success        bool      `json:"success"`
	StatusCode     int       `json:"status_code,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// EndpointStats aggregates delivery counters for an endpoint.  The
// invariant Succeeded+Failed == Total holds at all times; the registry
// updates the counters atomically.
type EndpointStats struct {
	Total               int64           `json:"total_sent"`
	Succeeded           int64           `json:"total_succeeded"`
	Failed              int64           `json:"total_failed"`
	AvgResponseMs       float64         `json:"avg_response_ms"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastDelivery        *DeliveryRecord `json:"last_delivery,omitempty"`
}

// FailureRate returns the fraction of recorded deliveries that failed,
// zero when nothing has been recorded yet.
func (s EndpointStats) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total)
}

// Uptime returns the success percentage in [0,100].
func (s EndpointStats) Uptime() float64 {
	u := 100 - s.FailureRate()*100
	if u < 0 {
		return 0
	}
	return u
}

// ComputeHealth derives the health classification from the failure
// counters: unhealthy at 5+ consecutive failures or a failure rate
// above 50%, degraded at 2+ consecutive failures or a failure rate
// above 20%, healthy otherwise.
func ComputeHealth(consecutiveFailures int, failureRate float64) string {
	switch {
	case consecutiveFailures >= 5 || failureRate > 0.5:
		return HealthUnhealthy
	case consecutiveFailures >= 2 || failureRate > 0.2:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// WebhookEndpoint is a tenant-configured HTTP target for event
// notifications.  The signing secret is write-only: it is returned to
// the tenant exactly once at creation and is never serialized by read
// paths (note the json:"-" tag).
type WebhookEndpoint struct {
	ID          uint64          `json:"id"`
	TenantID    uint64          `json:"tenant_id"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Events      []string        `json:"events"`
	IsActive    bool            `json:"is_active"`
	Secret      string          `json:"-"`
	Method      string          `json:"method"`       // POST or PUT
	Headers     map[string]string `json:"headers,omitempty"`
	ContentType string          `json:"content_type"`
	Timeout     time.Duration   `json:"timeout"`      // 1s..300s
	Retry       RetryPolicy     `json:"retry_policy"`
	Filter      EndpointFilter  `json:"filter"`
	Stats       EndpointStats   `json:"stats"`
	Health      string          `json:"health"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SubscribedTo reports whether the endpoint subscribes to the given
// event type.  A trailing ".*" in a subscription matches any event in
// that family, e.g. "guest.*" matches "guest.created".
func (e *WebhookEndpoint) SubscribedTo(eventType string) bool {
	for _, ev := range e.Events {
		if ev == eventType {
			return true
		}
		if n := len(ev); n > 2 && ev[n-2:] == ".*" {
			prefix := ev[:n-1] // keep the dot
			if len(eventType) > len(prefix) && eventType[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}
