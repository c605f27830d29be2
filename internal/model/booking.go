package model

import (
	"fmt"
	"time"
)

// Booking statuses.  Transitions between them are enforced by
// ApplyStatus; the core only ever drives a booking through the
// subset of transitions reachable from amendment handling.
const (
	BookingPending    = "pending"
	BookingConfirmed  = "confirmed"
	BookingCheckedIn  = "checked_in"
	BookingCheckedOut = "checked_out"
	BookingCancelled  = "cancelled"
	BookingModified   = "modified"
)

// Guest carries the descriptor of the booking's primary guest.  VIP is
// consulted when computing manual-review priority.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	VIP   bool   `json:"vip,omitempty"`
}

// StatusChange is one entry in a booking's append-only status history.
type StatusChange struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Reason    string    `json:"reason,omitempty"`
}

// AmendmentFlags summarises the amendment activity on a booking so list
// views do not have to unpack the full amendment array.
type AmendmentFlags struct {
	LastAmendmentAt   *time.Time `json:"last_amendment_at,omitempty"`
	HasOpenAmendments bool       `json:"has_open_amendments"`
}

// Booking is the aggregate the amendment pipeline reads and (narrowly)
// writes.  The core mutates only OTAAmendments, Flags, Status and
// StatusHistory; stay fields, total and guest details change only as
// the result of an approved amendment.  Version implements optimistic
// concurrency: every save compares and increments it.
type Booking struct {
	ID               uint64          // bookings.id
	TenantID         uint64          // bookings.tenant_id
	Channel          string          // originating OTA tag, e.g. "booking_com"
	ChannelBookingID string          // external correlator assigned by the channel
	Status           string          // current lifecycle status
	CheckIn          time.Time       // stay start (UTC)
	CheckOut         time.Time       // stay end (UTC)
	TotalAmount      float64         // monetary total in the booking currency
	Currency         string          // ISO 4217 code
	Guest            Guest           // primary guest descriptor
	SpecialRequests  string          // free-form guest requests
	RoomIDs          []uint64        // assigned room references
	OTAAmendments    []OTAAmendment  // append-only amendment records
	Flags            AmendmentFlags  // derived amendment summary
	StatusHistory    []StatusChange  // append-only status transitions
	Version          uint64          // optimistic concurrency revision
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// validBookingTransitions lists every status transition the aggregate
// accepts.  Anything absent is rejected by ApplyStatus.
var validBookingTransitions = map[string][]string{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCheckedIn, BookingCancelled, BookingModified},
	BookingModified:  {BookingCheckedIn, BookingCancelled, BookingModified, BookingConfirmed},
	BookingCheckedIn: {BookingCheckedOut, BookingModified},
}

// ApplyStatus transitions the booking to a new status, recording the
// change in the status history.  It returns an error when the
// transition is not allowed from the current status.  Transitioning to
// the current status is a no-op.
func (b *Booking) ApplyStatus(to, actor, reason string) error {
	if b.Status == to {
		return nil
	}
	allowed := false
	for _, next := range validBookingTransitions[b.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("invalid booking transition %s -> %s", b.Status, to)
	}
	b.StatusHistory = append(b.StatusHistory, StatusChange{
		From:      b.Status,
		To:        to,
		ChangedBy: actor,
		ChangedAt: time.Now().UTC(),
		Reason:    reason,
	})
	b.Status = to
	return nil
}

// Amendment returns the amendment with the given ID, or nil when no
// such record exists on the booking.
func (b *Booking) Amendment(amendmentID string) *OTAAmendment {
	for i := range b.OTAAmendments {
		if b.OTAAmendments[i].AmendmentID == amendmentID {
			return &b.OTAAmendments[i]
		}
	}
	return nil
}

// PendingAmendments returns every amendment still awaiting a decision,
// i.e. in the pending or conflicted state.
func (b *Booking) PendingAmendments() []*OTAAmendment {
	var open []*OTAAmendment
	for i := range b.OTAAmendments {
		if b.OTAAmendments[i].Open() {
			open = append(open, &b.OTAAmendments[i])
		}
	}
	return open
}

// RefreshAmendmentFlags recomputes the derived amendment summary from
// the amendment list.  Call after any amendment mutation, before save.
func (b *Booking) RefreshAmendmentFlags() {
	b.Flags.HasOpenAmendments = false
	var last *time.Time
	for i := range b.OTAAmendments {
		a := &b.OTAAmendments[i]
		if a.Open() {
			b.Flags.HasOpenAmendments = true
		}
		if last == nil || a.RequestedAt.After(*last) {
			t := a.RequestedAt
			last = &t
		}
	}
	b.Flags.LastAmendmentAt = last
}
