package model

import "time"

// DeliveryJob is one unit of webhook delivery work: a single event
// bound for a single endpoint.  Jobs are created by the event bus and
// destroyed by the dispatcher on a terminal outcome; a retry is the
// same job re-enqueued with Attempt incremented.
type DeliveryJob struct {
	ID             string                 `json:"id"`
	EndpointID     uint64                 `json:"endpoint_id"`
	TenantID       uint64                 `json:"tenant_id"`
	EventType      string                 `json:"event_type"`
	Payload        map[string]interface{} `json:"payload"`
	EventTimestamp time.Time              `json:"event_timestamp"`
	Attempt        int                    `json:"attempt"` // 0-based
	FirstAttemptAt time.Time              `json:"first_attempt_at"`
}

// DeliveryOutcome captures the result of one delivery attempt, as
// handed to the endpoint registry for statistics and health updates.
type DeliveryOutcome struct {
	Success        bool
	StatusCode     int
	ResponseTimeMs int64
	ErrorClass     string
	ErrorMessage   string
	EventType      string
}
