package amendment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// amendmentWindow is how long before check-in non-cancellation
// amendments stop being accepted.
const amendmentWindow = 2 * time.Hour

// rateFlagThreshold is the relative total change above which a
// rate_change is flagged for manual approval instead of flowing
// through auto-approval.
const rateFlagThreshold = 0.20

// Validator performs the per-type rule checks on an incoming
// amendment.  Validation never mutates the booking; it may set the
// manual-approval flags on the amendment itself (rate changes above
// the threshold are flagged rather than rejected).
type Validator struct {
	rooms  RoomAvailability
	policy CancellationPolicy
	now    func() time.Time
}

// RoomAvailability is the subset of the booking store the validator
// needs for overlap checks.
type RoomAvailability interface {
	FindRoomOverlaps(ctx context.Context, excludeBookingID uint64, roomIDs []uint64, checkIn, checkOut time.Time) ([]uint64, error)
}

// NewValidator constructs a Validator.  policy may be nil, in which
// case cancellations are always allowed.
func NewValidator(rooms RoomAvailability, policy CancellationPolicy) *Validator {
	return &Validator{rooms: rooms, policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

// Validate applies the general preconditions and the per-type rules.
// It returns a *ValidationError or *PolicyError describing the first
// failure, or nil when the amendment may proceed.
func (v *Validator) Validate(ctx context.Context, b *model.Booking, a *model.OTAAmendment) error {
	now := v.now()
	if b.Status == model.BookingCancelled || b.Status == model.BookingCheckedOut {
		return &ValidationError{Reason: fmt.Sprintf("booking is %s and can no longer be amended", b.Status)}
	}
	if a.Type != model.AmendCancellationRequest && !now.Add(amendmentWindow).Before(b.CheckIn) {
		return &ValidationError{Reason: "amendment window closed: check-in is less than 2 hours away"}
	}
	switch a.Type {
	case model.AmendDatesChange:
		return v.validateDatesChange(ctx, b, a, now)
	case model.AmendRateChange:
		v.flagLargeRateChange(b, a)
		return nil
	case model.AmendRoomChange:
		return v.validateRoomChange(ctx, b, a)
	case model.AmendCancellationRequest:
		return v.validateCancellation(b, a, now)
	case model.AmendGuestDetailsChange, model.AmendSpecialRequestChange:
		return nil
	}
	return &ValidationError{Reason: fmt.Sprintf("unknown amendment type %q", a.Type)}
}

func (v *Validator) validateDatesChange(ctx context.Context, b *model.Booking, a *model.OTAAmendment, now time.Time) error {
	checkIn, err := changeTime(a.RequestedChanges, "check_in", b.CheckIn)
	if err != nil {
		return &ValidationError{Reason: "invalid check_in value"}
	}
	checkOut, err := changeTime(a.RequestedChanges, "check_out", b.CheckOut)
	if err != nil {
		return &ValidationError{Reason: "invalid check_out value"}
	}
	if checkIn.Before(now.Truncate(24 * time.Hour)) {
		return &ValidationError{Reason: "new check-in date is in the past"}
	}
	if !checkOut.After(checkIn) {
		return &ValidationError{Reason: "check-out must be after check-in"}
	}
	taken, err := v.rooms.FindRoomOverlaps(ctx, b.ID, b.RoomIDs, checkIn, checkOut)
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return &ValidationError{Reason: fmt.Sprintf("rooms %v are not available for the requested dates", taken)}
	}
	return nil
}

// flagLargeRateChange marks rate changes above the threshold for
// manual approval.  The amendment is never rejected on amount alone.
func (v *Validator) flagLargeRateChange(b *model.Booking, a *model.OTAAmendment) {
	proposed, ok := changeNumber(a.RequestedChanges, "total_amount")
	if !ok || b.TotalAmount == 0 {
		return
	}
	delta := math.Abs(proposed-b.TotalAmount) / b.TotalAmount
	if delta > rateFlagThreshold {
		a.RequiresManual = true
		a.FlagReason = fmt.Sprintf("rate change %.0f%% exceeds %.0f%% threshold",
			delta*100, rateFlagThreshold*100)
	}
}

func (v *Validator) validateRoomChange(ctx context.Context, b *model.Booking, a *model.OTAAmendment) error {
	roomIDs, ok := changeRoomIDs(a.RequestedChanges)
	if !ok || len(roomIDs) == 0 {
		return &ValidationError{Reason: "room_ids is required for a room change"}
	}
	taken, err := v.rooms.FindRoomOverlaps(ctx, b.ID, roomIDs, b.CheckIn, b.CheckOut)
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return &ValidationError{Reason: fmt.Sprintf("rooms %v are not available for the stay dates", taken)}
	}
	return nil
}

func (v *Validator) validateCancellation(b *model.Booking, a *model.OTAAmendment, now time.Time) error {
	if bypass, _ := a.RequestedChanges["bypass_policy"].(bool); bypass {
		return nil
	}
	if v.policy == nil {
		return nil
	}
	if allowed, reason := v.policy.AllowCancellation(b, now); !allowed {
		if reason == "" {
			reason = "cancellation refused by policy"
		}
		return &PolicyError{Reason: reason}
	}
	return nil
}

// changeTime reads a timestamp field from requestedChanges, falling
// back to the booking's current value when the field is absent.
func changeTime(changes map[string]interface{}, key string, current time.Time) (time.Time, error) {
	raw, ok := changes[key]
	if !ok {
		return current, nil
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%s is not a string", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// date-only form is accepted from channels that do not send times
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}

func changeNumber(changes map[string]interface{}, key string) (float64, bool) {
	raw, ok := changes[key]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func changeRoomIDs(changes map[string]interface{}) ([]uint64, bool) {
	raw, ok := changes["room_ids"]
	if !ok {
		return nil, false
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	ids := make([]uint64, 0, len(list))
	for _, item := range list {
		switch n := item.(type) {
		case float64:
			if n < 0 {
				return nil, false
			}
			ids = append(ids, uint64(n))
		case int:
			if n < 0 {
				return nil, false
			}
			ids = append(ids, uint64(n))
		default:
			return nil, false
		}
	}
	return ids, true
}
