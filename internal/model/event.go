package model

import "time"

// Event types published by the booking lifecycle.  The vocabulary is
// closed; endpoints may additionally subscribe to the "guest.*" and
// "system.*" families via wildcard subscriptions.
const (
	EventBookingCreated       = "booking.created"
	EventBookingUpdated       = "booking.updated"
	EventBookingCancelled     = "booking.cancelled"
	EventBookingConfirmed     = "booking.confirmed"
	EventBookingCheckedIn     = "booking.checked_in"
	EventBookingCheckedOut    = "booking.checked_out"
	EventBookingNoShow        = "booking.no_show"
	EventPaymentCompleted     = "payment.completed"
	EventPaymentFailed        = "payment.failed"
	EventPaymentRefunded      = "payment.refunded"
	EventPaymentPartialRefund = "payment.partial_refund"
	EventRoomAvailability     = "room.availability_changed"
	EventRoomStatus           = "room.status_changed"
	EventRateUpdated          = "rate.updated"
	EventRateCreated          = "rate.created"
	EventRateDeleted          = "rate.deleted"
)

// knownEventTypes indexes the closed vocabulary for subscription
// validation.
var knownEventTypes = map[string]struct{}{
	EventBookingCreated: {}, EventBookingUpdated: {}, EventBookingCancelled: {},
	EventBookingConfirmed: {}, EventBookingCheckedIn: {}, EventBookingCheckedOut: {},
	EventBookingNoShow: {}, EventPaymentCompleted: {}, EventPaymentFailed: {},
	EventPaymentRefunded: {}, EventPaymentPartialRefund: {}, EventRoomAvailability: {},
	EventRoomStatus: {}, EventRateUpdated: {}, EventRateCreated: {}, EventRateDeleted: {},
}

// families that wildcard subscriptions may target.
var knownEventFamilies = map[string]struct{}{
	"booking": {}, "payment": {}, "room": {}, "rate": {}, "guest": {}, "system": {},
}

// ValidSubscription reports whether s is an acceptable subscription
// entry: either a concrete event type from the vocabulary or a family
// wildcard such as "booking.*".
func ValidSubscription(s string) bool {
	if _, ok := knownEventTypes[s]; ok {
		return true
	}
	if n := len(s); n > 2 && s[n-2:] == ".*" {
		_, ok := knownEventFamilies[s[:n-2]]
		return ok
	}
	return false
}

// Event is a typed record of a state change in the booking domain,
// published to the webhook bus for fan-out.
type Event struct {
	Type       string                 `json:"event_type"`
	TenantID   uint64                 `json:"tenant_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Body       map[string]interface{} `json:"body"`
}
