// Package amendment implements the OTA amendment pipeline: validation,
// conflict detection, auto-approval and the coordinator that drives an
// amendment from receipt to a terminal decision.
package amendment

import "errors"

// ValidationError is returned when an amendment fails a validation
// rule.  Handlers translate it into an HTTP 400; the amendment is not
// persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// PolicyError is returned when a cancellation request is refused by
// the booking's cancellation policy.  Handlers translate it into an
// HTTP 400.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return e.Reason }

// ErrAmendmentNotFound is returned by the manual decision paths when
// the booking has no amendment with the requested ID.
var ErrAmendmentNotFound = errors.New("amendment not found")

// ErrAmendmentFinal is returned when a manual decision targets an
// amendment already in a terminal state.
var ErrAmendmentFinal = errors.New("amendment already decided")

// ErrRejectionReasonRequired is returned when a manual rejection
// carries no reason.
var ErrRejectionReasonRequired = errors.New("rejection reason is required")

// ErrConflictUnresolved is returned when concurrent writers kept the
// booking moving for longer than the bounded save-retry loop.
var ErrConflictUnresolved = errors.New("booking update conflict unresolved")
