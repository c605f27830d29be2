package amendment

import (
	"context"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// BookingStore is the persistence surface the pipeline needs from the
// booking repository: versioned load/save plus the room availability
// check used by date and room amendments.
type BookingStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	SaveVersioned(ctx context.Context, b *model.Booking) error
	FindRoomOverlaps(ctx context.Context, excludeBookingID uint64, roomIDs []uint64, checkIn, checkOut time.Time) ([]uint64, error)
	ReplaceRooms(ctx context.Context, bookingID uint64, roomIDs []uint64) error
}

// ReviewItem is what the coordinator hands to the manual review queue.
type ReviewItem struct {
	TenantID    uint64    `json:"tenant_id"`
	BookingID   uint64    `json:"booking_id"`
	AmendmentID string    `json:"amendment_id"`
	Type        string    `json:"amendment_type"`
	Priority    int       `json:"priority"` // 0..10
	Reason      string    `json:"reason"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// ReviewQueue hands amendments needing a human decision to an external
// priority queue.  Delivery order within a priority level is FIFO.
type ReviewQueue interface {
	Enqueue(ctx context.Context, item ReviewItem) error
}

// EventPublisher fans a lifecycle event out to webhook subscribers.
// Publication failures never reverse an amendment decision.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// ChannelConfirmation carries the decision back to the originating
// travel agency.
type ChannelConfirmation struct {
	Channel            string    `json:"channel"`
	ChannelBookingID   string    `json:"channel_booking_id"`
	ChannelAmendmentID string    `json:"channel_amendment_id,omitempty"`
	Decision           string    `json:"decision"` // approved or rejected
	ConfirmationID     string    `json:"confirmation_id"`
	Timestamp          time.Time `json:"timestamp"`
}

// ChannelConfirmer notifies the originating channel of a decision.
type ChannelConfirmer interface {
	Confirm(ctx context.Context, conf ChannelConfirmation) error
}

// CancellationPolicy decides whether a cancellation request is allowed
// for a booking.  When it refuses, the returned reason is surfaced to
// the caller.
type CancellationPolicy interface {
	AllowCancellation(b *model.Booking, requestedAt time.Time) (bool, string)
}
