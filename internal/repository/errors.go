// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the amendment coordinator to distinguish between
// different failure scenarios without inspecting SQL driver errors.
package repository

import "errors"

// ErrBookingNotFound is returned when no booking exists for the
// requested ID. Handlers should translate this into an HTTP 404.
var ErrBookingNotFound = errors.New("booking not found")

// ErrEndpointNotFound is returned when no webhook endpoint exists for
// the requested ID, or when the endpoint belongs to another tenant.
var ErrEndpointNotFound = errors.New("webhook endpoint not found")

// ErrTenantNotFound is returned when no tenant row matches the
// presented credentials.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrVersionConflict is returned by versioned saves when the row was
// modified between load and save. Callers re-load and retry a bounded
// number of times before surfacing the conflict.
var ErrVersionConflict = errors.New("version conflict")
