package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// DeliveryRepo backs the in-process delivery queue with a durable
// mirror.  Every enqueued job has a row in delivery_jobs until it
// reaches a terminal outcome; on startup the dispatcher requeues
// whatever is still pending so retries survive a restart.  Individual
// attempts are appended to delivery_attempts for inspection.
type DeliveryRepo struct {
	db *sql.DB
}

// NewDeliveryRepo returns a new DeliveryRepo bound to the given database.
func NewDeliveryRepo(db *sql.DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

// InsertJob persists a freshly enqueued job.
func (r *DeliveryRepo) InsertJob(ctx context.Context, job model.DeliveryJob) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}
	const q = `INSERT INTO delivery_jobs
			   (id, endpoint_id, tenant_id, event_type, payload, event_timestamp, attempt, first_attempt_at)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		job.ID, job.EndpointID, job.TenantID, job.EventType, payload,
		job.EventTimestamp.UTC(), job.Attempt, job.FirstAttemptAt.UTC(),
	)
	return err
}

// MarkRetry records that the job will be attempted again, bumping the
// stored attempt counter and the earliest time the retry may run.
func (r *DeliveryRepo) MarkRetry(ctx context.Context, jobID string, attempt int, nextAt time.Time) error {
	const q = `UPDATE delivery_jobs SET attempt = ?, next_attempt_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, attempt, nextAt.UTC(), jobID)
	return err
}

// DeleteJob removes a job that reached a terminal outcome, whether
// success, give-up or drop.
func (r *DeliveryRepo) DeleteJob(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM delivery_jobs WHERE id = ?`, jobID)
	return err
}

// ListPending returns every job still awaiting a terminal outcome,
// oldest first so requeueing preserves per-endpoint order.
func (r *DeliveryRepo) ListPending(ctx context.Context) ([]model.DeliveryJob, error) {
	const q = `SELECT id, endpoint_id, tenant_id, event_type, payload, event_timestamp, attempt, first_attempt_at
			   FROM delivery_jobs ORDER BY first_attempt_at, id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []model.DeliveryJob
	for rows.Next() {
		var job model.DeliveryJob
		var payload []byte
		if err := rows.Scan(&job.ID, &job.EndpointID, &job.TenantID, &job.EventType,
			&payload, &job.EventTimestamp, &job.Attempt, &job.FirstAttemptAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &job.Payload); err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RecordAttempt appends one attempt to the delivery log.
func (r *DeliveryRepo) RecordAttempt(ctx context.Context, job model.DeliveryJob, outcome model.DeliveryOutcome) error {
	const q = `INSERT INTO delivery_attempts
			   (job_id, endpoint_id, event_type, attempt, success, status_code, response_time_ms, error_class, error_message, attempted_at)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP())`
	_, err := r.db.ExecContext(ctx, q,
		job.ID, job.EndpointID, job.EventType, job.Attempt,
		outcome.Success, outcome.StatusCode, outcome.ResponseTimeMs,
		outcome.ErrorClass, outcome.ErrorMessage,
	)
	return err
}
