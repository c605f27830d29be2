package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// EndpointRepo provides access to the webhook_endpoints table.  The
// signing secret is stored alongside the row but is only loaded for
// internal consumers (the dispatcher); handler read paths rely on the
// model's json:"-" tag to keep it out of responses.
type EndpointRepo struct {
	db *sql.DB
}

// NewEndpointRepo returns a new EndpointRepo bound to the given database.
func NewEndpointRepo(db *sql.DB) *EndpointRepo { return &EndpointRepo{db: db} }

const endpointColumns = `id, tenant_id, name, url, events, is_active, secret,
	   method, headers, content_type, timeout_seconds, retry_policy, filter,
	   total_sent, total_succeeded, total_failed, avg_response_ms,
	   consecutive_failures, last_delivery, health, created_at, updated_at`

// Create inserts a new endpoint and populates the generated ID.  The
// caller is responsible for having generated the secret; it is stored
// verbatim because it is needed to sign outgoing requests.
func (r *EndpointRepo) Create(ctx context.Context, e *model.WebhookEndpoint) error {
	events, err := json.Marshal(e.Events)
	if err != nil {
		return err
	}
	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return err
	}
	retry, err := json.Marshal(e.Retry)
	if err != nil {
		return err
	}
	filter, err := json.Marshal(e.Filter)
	if err != nil {
		return err
	}
	const q = `INSERT INTO webhook_endpoints
			   (tenant_id, name, url, events, is_active, secret, method, headers,
				content_type, timeout_seconds, retry_policy, filter, health)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'healthy')`
	res, err := r.db.ExecContext(ctx, q,
		e.TenantID, e.Name, e.URL, events, e.IsActive, e.Secret, e.Method,
		headers, e.ContentType, int(e.Timeout/time.Second), retry, filter,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.Health = model.HealthHealthy
	return nil
}

// GetByID loads an endpoint regardless of tenant.  Used by the
// dispatcher, which receives jobs already scoped by the bus.
func (r *EndpointRepo) GetByID(ctx context.Context, id uint64) (*model.WebhookEndpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE id = ?`
	e, err := scanEndpoint(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	return e, err
}

// GetForTenant loads an endpoint and enforces tenant ownership.
// A row belonging to another tenant is reported as not found rather
// than forbidden so endpoint IDs do not leak across tenants.
func (r *EndpointRepo) GetForTenant(ctx context.Context, id, tenantID uint64) (*model.WebhookEndpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE id = ? AND tenant_id = ?`
	e, err := scanEndpoint(r.db.QueryRowContext(ctx, q, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	return e, err
}

// ListByTenant returns every endpoint owned by the tenant, newest
// first.  Inactive endpoints are included so admins can reactivate
// them.
func (r *EndpointRepo) ListByTenant(ctx context.Context, tenantID uint64) ([]model.WebhookEndpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM webhook_endpoints
		  WHERE tenant_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]model.WebhookEndpoint, 0)
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// FindSubscribers returns the active endpoints of a tenant subscribed
// to the given event type.  Subscription matching, including the
// ".*" family wildcard, happens in Go because events are stored as a
// JSON array.  Payload filters are evaluated later by the event bus.
func (r *EndpointRepo) FindSubscribers(ctx context.Context, tenantID uint64, eventType string) ([]model.WebhookEndpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM webhook_endpoints
		  WHERE tenant_id = ? AND is_active = 1`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.WebhookEndpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		if e.SubscribedTo(eventType) {
			subs = append(subs, *e)
		}
	}
	return subs, rows.Err()
}

// Update rewrites the mutable configuration of an endpoint.  Stats,
// health and the secret are deliberately not touched.  It returns
// ErrEndpointNotFound when the row does not exist for the tenant.
func (r *EndpointRepo) Update(ctx context.Context, e *model.WebhookEndpoint) error {
	events, err := json.Marshal(e.Events)
	if err != nil {
		return err
	}
	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return err
	}
	retry, err := json.Marshal(e.Retry)
	if err != nil {
		return err
	}
	filter, err := json.Marshal(e.Filter)
	if err != nil {
		return err
	}
	const q = `UPDATE webhook_endpoints
			   SET name = ?, url = ?, events = ?, is_active = ?, method = ?, headers = ?,
				   content_type = ?, timeout_seconds = ?, retry_policy = ?, filter = ?,
				   updated_at = UTC_TIMESTAMP()
			   WHERE id = ? AND tenant_id = ?`
	res, err := r.db.ExecContext(ctx, q,
		e.Name, e.URL, events, e.IsActive, e.Method, headers,
		e.ContentType, int(e.Timeout/time.Second), retry, filter,
		e.ID, e.TenantID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// Deactivate switches an endpoint off without deleting it.  In-flight
// deliveries observe the flag on their next registry load and drop
// remaining retries.
func (r *EndpointRepo) Deactivate(ctx context.Context, id, tenantID uint64) error {
	const q = `UPDATE webhook_endpoints SET is_active = 0, updated_at = UTC_TIMESTAMP()
			   WHERE id = ? AND tenant_id = ?`
	res, err := r.db.ExecContext(ctx, q, id, tenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// RecordDelivery applies one delivery outcome to the endpoint's
// statistics in a single UPDATE so concurrent deliveries never lose
// counts.  MySQL evaluates SET assignments left to right using
// already-updated values, so the ordering below matters: the rolling
// mean reads the pre-increment success count, while the health CASE
// reads the post-increment totals.
func (r *EndpointRepo) RecordDelivery(ctx context.Context, id uint64, outcome model.DeliveryOutcome) error {
	last, err := json.Marshal(model.DeliveryRecord{
		At:             time.Now().UTC(),
		EventType:      outcome.EventType,
		Success:        outcome.Success,
		StatusCode:     outcome.StatusCode,
		ResponseTimeMs: outcome.ResponseTimeMs,
		Error:          outcome.ErrorMessage,
	})
	if err != nil {
		return err
	}
	const q = `UPDATE webhook_endpoints SET
				 avg_response_ms = IF(?, (avg_response_ms * total_succeeded + ?) / (total_succeeded + 1), avg_response_ms),
				 total_sent = total_sent + 1,
				 total_succeeded = total_succeeded + IF(?, 1, 0),
				 total_failed = total_failed + IF(?, 0, 1),
				 consecutive_failures = IF(?, 0, consecutive_failures + 1),
				 health = CASE
				   WHEN consecutive_failures >= 5 OR total_failed / total_sent > 0.5 THEN 'unhealthy'
				   WHEN consecutive_failures >= 2 OR total_failed / total_sent > 0.2 THEN 'degraded'
				   ELSE 'healthy'
				 END,
				 last_delivery = ?,
				 updated_at = UTC_TIMESTAMP()
			   WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q,
		outcome.Success, outcome.ResponseTimeMs,
		outcome.Success, outcome.Success, outcome.Success,
		last, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

func scanEndpoint(row rowScanner) (*model.WebhookEndpoint, error) {
	var e model.WebhookEndpoint
	var events, headers, retry, filter, last []byte
	var timeoutSeconds int
	err := row.Scan(
		&e.ID, &e.TenantID, &e.Name, &e.URL, &events, &e.IsActive, &e.Secret,
		&e.Method, &headers, &e.ContentType, &timeoutSeconds, &retry, &filter,
		&e.Stats.Total, &e.Stats.Succeeded, &e.Stats.Failed, &e.Stats.AvgResponseMs,
		&e.Stats.ConsecutiveFailures, &last, &e.Health, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Timeout = time.Duration(timeoutSeconds) * time.Second
	if len(events) > 0 {
		if err := json.Unmarshal(events, &e.Events); err != nil {
			return nil, err
		}
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &e.Headers); err != nil {
			return nil, err
		}
	}
	if len(retry) > 0 {
		if err := json.Unmarshal(retry, &e.Retry); err != nil {
			return nil, err
		}
	}
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &e.Filter); err != nil {
			return nil, err
		}
	}
	if len(last) > 0 {
		var rec model.DeliveryRecord
		if err := json.Unmarshal(last, &rec); err != nil {
			return nil, err
		}
		e.Stats.LastDelivery = &rec
	}
	return &e, nil
}
