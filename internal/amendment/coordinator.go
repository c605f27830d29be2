package amendment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
	"github.com/stayops/ota-bridge/internal/repository"
)

// Result statuses returned to the ingress caller.
const (
	StatusAutoApproved     = "auto_approved"
	StatusPendingReview    = "pending_review"
	StatusConflictDetected = "conflict_detected"
	StatusApproved         = "approved"
	StatusRejected         = "rejected"
)

// maxSaveAttempts bounds the optimistic-concurrency retry loop around
// the booking save.  Exhausting it surfaces ErrConflictUnresolved.
const maxSaveAttempts = 3

// Input is the amendment payload as received from the channel webhook.
type Input struct {
	Type               string
	RequestedChanges   map[string]interface{}
	Channel            string
	ChannelAmendmentID string
	ReceivedAt         *time.Time
}

// Result is what the coordinator reports back to the ingress handler.
type Result struct {
	Status      string     `json:"status"`
	AmendmentID string     `json:"amendment_id"`
	Reason      string     `json:"reason,omitempty"`
	Conflicts   []Conflict `json:"conflicts,omitempty"`
}

// Coordinator orchestrates the amendment pipeline: validate, append,
// resolve conflicts, auto-approve or queue for review, persist with
// optimistic concurrency, then publish events and confirm back to the
// channel.  Events, review enqueues and confirmations all run strictly
// after the booking write commits.
type Coordinator struct {
	bookings   BookingStore
	review     ReviewQueue
	events     EventPublisher
	confirmer  ChannelConfirmer
	validator  *Validator
	strategies map[string]ResolutionStrategy
	rules      map[string]AutoApprovalRule
	now        func() time.Time
}

// NewCoordinator wires the pipeline together.  confirmer may be nil
// when no channel clients are registered; bookings, review, events and
// validator must be non-nil.
func NewCoordinator(bookings BookingStore, review ReviewQueue, events EventPublisher, confirmer ChannelConfirmer, validator *Validator) *Coordinator {
	if bookings == nil || review == nil || events == nil || validator == nil {
		panic("nil dependency passed to NewCoordinator")
	}
	return &Coordinator{
		bookings:   bookings,
		review:     review,
		events:     events,
		confirmer:  confirmer,
		validator:  validator,
		strategies: DefaultStrategies(),
		rules:      DefaultAutoApprovalRules(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterStrategy replaces the resolution strategy for a conflict
// type.  Passing nil removes it, routing that conflict type straight
// to manual review.
func (c *Coordinator) RegisterStrategy(conflictType string, s ResolutionStrategy) {
	if s == nil {
		delete(c.strategies, conflictType)
		return
	}
	c.strategies[conflictType] = s
}

// SetAutoApprovalRules overrides the default rule set.
func (c *Coordinator) SetAutoApprovalRules(rules map[string]AutoApprovalRule) {
	c.rules = rules
}

// Receive runs the full ingestion path for one incoming amendment.
// Validation failures and unknown bookings surface as errors with
// nothing persisted; every other path persists the amendment record
// and reports its disposition in the Result.
func (c *Coordinator) Receive(ctx context.Context, bookingID uint64, in Input) (*Result, error) {
	if !model.KnownAmendmentType(in.Type) {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown amendment type %q", in.Type)}
	}
	var result *Result
	err := c.withBooking(ctx, bookingID, func(b *model.Booking) (postCommit, error) {
		requestedAt := c.now()
		if in.ReceivedAt != nil {
			requestedAt = in.ReceivedAt.UTC()
		}
		a := model.OTAAmendment{
			AmendmentID:        newAmendmentID(),
			Channel:            in.Channel,
			ChannelAmendmentID: in.ChannelAmendmentID,
			Type:               in.Type,
			RequestedChanges:   in.RequestedChanges,
			RequestedAt:        requestedAt,
			Status:             model.AmendmentPending,
		}
		if err := c.validator.Validate(ctx, b, &a); err != nil {
			return nil, err
		}
		b.OTAAmendments = append(b.OTAAmendments, a)
		stored := &b.OTAAmendments[len(b.OTAAmendments)-1]

		// A resolution mutates the booking, so re-detect after each one
		// instead of walking a stale list.
		for conflicts := DetectConflicts(b, stored); len(conflicts) > 0; conflicts = DetectConflicts(b, stored) {
			resolved, err := c.tryResolve(ctx, b, stored, conflicts[0])
			if err != nil {
				return nil, err
			}
			if !resolved {
				stored.Status = model.AmendmentConflicted
				b.RefreshAmendmentFlags()
				item := c.reviewItem(b, stored, "conflicts with a pending amendment")
				result = &Result{Status: StatusConflictDetected, AmendmentID: stored.AmendmentID, Conflicts: conflicts}
				return func(ctx context.Context) error { return c.enqueueReview(ctx, item) }, nil
			}
		}

		eval := EvaluateAutoApproval(b, stored, c.rules, c.now())
		if eval.CanAutoApprove {
			if err := c.applyApproval(b, stored, "system", eval.Reason, true); err != nil {
				return nil, err
			}
			result = &Result{Status: StatusAutoApproved, AmendmentID: stored.AmendmentID, Reason: eval.Reason}
			return c.decisionEffects(b, stored.AmendmentID, true), nil
		}
		b.RefreshAmendmentFlags()
		item := c.reviewItem(b, stored, eval.Reason)
		result = &Result{Status: StatusPendingReview, AmendmentID: stored.AmendmentID, Reason: eval.Reason}
		return func(ctx context.Context) error { return c.enqueueReview(ctx, item) }, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Approve applies a manual approval decision.  When bypassValidation
// is false the amendment is re-validated against the current booking
// state before the changes apply.  A non-empty partial map narrows the
// approval to the named requested-change fields; keys outside the
// original request are refused.
func (c *Coordinator) Approve(ctx context.Context, bookingID uint64, amendmentID, actor, reason string, partial map[string]interface{}, bypassValidation bool) (*Result, error) {
	if actor == "" {
		actor = "reviewer"
	}
	var result *Result
	err := c.withBooking(ctx, bookingID, func(b *model.Booking) (postCommit, error) {
		a := b.Amendment(amendmentID)
		if a == nil {
			return nil, ErrAmendmentNotFound
		}
		if a.Terminal() {
			return nil, ErrAmendmentFinal
		}
		if len(partial) > 0 {
			if err := narrowChanges(a, partial); err != nil {
				return nil, err
			}
		}
		if !bypassValidation {
			if err := c.validator.Validate(ctx, b, a); err != nil {
				return nil, err
			}
		}
		if err := c.applyApproval(b, a, actor, reason, false); err != nil {
			return nil, err
		}
		result = &Result{Status: StatusApproved, AmendmentID: a.AmendmentID, Reason: reason}
		return c.decisionEffects(b, a.AmendmentID, true), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reject applies a manual rejection.  A non-empty reason is mandatory.
// notifyGuest rides along on the published event so downstream
// notifiers know whether to contact the guest.
func (c *Coordinator) Reject(ctx context.Context, bookingID uint64, amendmentID, actor, reason string, notifyGuest bool) (*Result, error) {
	if reason == "" {
		return nil, ErrRejectionReasonRequired
	}
	if actor == "" {
		actor = "reviewer"
	}
	var result *Result
	err := c.withBooking(ctx, bookingID, func(b *model.Booking) (postCommit, error) {
		a := b.Amendment(amendmentID)
		if a == nil {
			return nil, ErrAmendmentNotFound
		}
		if a.Terminal() {
			return nil, ErrAmendmentFinal
		}
		a.Status = model.AmendmentRejected
		a.Resolution = &model.Resolution{DecidedBy: actor, DecidedAt: c.now(), Reason: reason}
		b.RefreshAmendmentFlags()
		result = &Result{Status: StatusRejected, AmendmentID: a.AmendmentID, Reason: reason}
		return c.decisionEffects(b, a.AmendmentID, notifyGuest), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// postCommit is side-effect work that must only run once the booking
// save has committed: review enqueues, event publication, channel
// confirmation.
type postCommit func(ctx context.Context) error

// withBooking loads the booking, runs mutate, and saves with the
// bounded optimistic-concurrency retry loop.  On a version conflict
// the booking is re-loaded and mutate runs again against fresh state,
// so one concurrent writer always observes the other's record.  The
// returned post-commit hook runs exactly once, after the save that
// succeeded.
func (c *Coordinator) withBooking(ctx context.Context, bookingID uint64, mutate func(b *model.Booking) (postCommit, error)) error {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		b, err := c.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		post, err := mutate(b)
		if err != nil {
			return err
		}
		err = c.bookings.SaveVersioned(ctx, b)
		if err == nil {
			if post != nil {
				return post(ctx)
			}
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
	}
	return ErrConflictUnresolved
}

// applyApproval transitions the amendment to approved and applies its
// requested changes to the aggregate through the booking's own status
// rules.
func (c *Coordinator) applyApproval(b *model.Booking, a *model.OTAAmendment, actor, reason string, auto bool) error {
	if err := c.applyChanges(b, a, actor); err != nil {
		return err
	}
	a.Status = model.AmendmentApproved
	a.Resolution = &model.Resolution{DecidedBy: actor, DecidedAt: c.now(), Reason: reason, AutoApproved: auto}
	b.RefreshAmendmentFlags()
	return nil
}

// applyChanges mutates the aggregate per amendment type.  Room
// reassignment in the join table is deferred to the post-commit hook
// because it lives outside the versioned row.
func (c *Coordinator) applyChanges(b *model.Booking, a *model.OTAAmendment, actor string) error {
	switch a.Type {
	case model.AmendDatesChange:
		checkIn, err := changeTime(a.RequestedChanges, "check_in", b.CheckIn)
		if err != nil {
			return &ValidationError{Reason: "invalid check_in value"}
		}
		checkOut, err := changeTime(a.RequestedChanges, "check_out", b.CheckOut)
		if err != nil {
			return &ValidationError{Reason: "invalid check_out value"}
		}
		b.CheckIn, b.CheckOut = checkIn, checkOut
		return b.ApplyStatus(model.BookingModified, actor, "dates changed by amendment "+a.AmendmentID)
	case model.AmendRateChange:
		if proposed, ok := changeNumber(a.RequestedChanges, "total_amount"); ok {
			b.TotalAmount = proposed
		}
		return b.ApplyStatus(model.BookingModified, actor, "rate changed by amendment "+a.AmendmentID)
	case model.AmendRoomChange:
		if ids, ok := changeRoomIDs(a.RequestedChanges); ok {
			b.RoomIDs = ids
		}
		return b.ApplyStatus(model.BookingModified, actor, "rooms changed by amendment "+a.AmendmentID)
	case model.AmendGuestDetailsChange:
		if name, ok := a.RequestedChanges["name"].(string); ok {
			b.Guest.Name = name
		}
		if email, ok := a.RequestedChanges["email"].(string); ok {
			b.Guest.Email = email
		}
		if phone, ok := a.RequestedChanges["phone"].(string); ok {
			b.Guest.Phone = phone
		}
		return nil
	case model.AmendSpecialRequestChange:
		if req, ok := a.RequestedChanges["special_requests"].(string); ok {
			b.SpecialRequests = req
		}
		return nil
	case model.AmendCancellationRequest:
		reason, _ := a.RequestedChanges["reason"].(string)
		return b.ApplyStatus(model.BookingCancelled, actor, reason)
	}
	return fmt.Errorf("unknown amendment type %q", a.Type)
}

func (c *Coordinator) tryResolve(ctx context.Context, b *model.Booking, candidate *model.OTAAmendment, conflict Conflict) (bool, error) {
	strategy, ok := c.strategies[conflict.Type]
	if !ok {
		return false, nil
	}
	return strategy(ctx, b, candidate, conflict)
}

func (c *Coordinator) reviewItem(b *model.Booking, a *model.OTAAmendment, reason string) ReviewItem {
	return ReviewItem{
		TenantID:    b.TenantID,
		BookingID:   b.ID,
		AmendmentID: a.AmendmentID,
		Type:        a.Type,
		Priority:    ReviewPriority(b, c.now()),
		Reason:      reason,
		EnqueuedAt:  c.now(),
	}
}

// enqueueReview pushes the item to the review queue.  A failure here
// is persistence-grade: the amendment is already saved, but it must
// not silently sit undecided, so the error surfaces to the caller.
func (c *Coordinator) enqueueReview(ctx context.Context, item ReviewItem) error {
	if err := c.review.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("review enqueue: %w", err)
	}
	return nil
}

// narrowChanges restricts an amendment to the fields named in partial.
// Values come from partial so a reviewer may correct them; keys the
// channel never requested are refused.
func narrowChanges(a *model.OTAAmendment, partial map[string]interface{}) error {
	narrowed := make(map[string]interface{}, len(partial))
	for field, value := range partial {
		if _, ok := a.RequestedChanges[field]; !ok {
			return &ValidationError{Reason: fmt.Sprintf("field %q was not part of the requested changes", field)}
		}
		narrowed[field] = value
	}
	a.RequestedChanges = narrowed
	return nil
}

// decisionEffects builds the post-commit hook for a decided amendment:
// lifecycle event fan-out, room join-table sync and the channel
// confirmation.  Failures are logged only; the decision stands.
func (c *Coordinator) decisionEffects(b *model.Booking, amendmentID string, notifyGuest bool) postCommit {
	return func(ctx context.Context) error {
		a := b.Amendment(amendmentID)
		if a == nil || a.Resolution == nil {
			return nil
		}
		eventType := model.EventBookingUpdated
		if a.Status == model.AmendmentApproved && a.Type == model.AmendCancellationRequest {
			eventType = model.EventBookingCancelled
		}
		ev := model.Event{
			Type:       eventType,
			TenantID:   b.TenantID,
			OccurredAt: a.Resolution.DecidedAt,
			Body: map[string]interface{}{
				"booking_id":   b.ID,
				"channel":      b.Channel,
				"status":       b.Status,
				"total_amount": b.TotalAmount,
				"notify_guest": notifyGuest,
				"amendment": map[string]interface{}{
					"amendment_id": a.AmendmentID,
					"type":         a.Type,
					"status":       a.Status,
					"auto":         a.Resolution.AutoApproved,
				},
			},
		}
		if err := c.events.Publish(ctx, ev); err != nil {
			log.Printf("coordinator: publish %s for booking %d failed: %v", ev.Type, b.ID, err)
		}
		if a.Status == model.AmendmentApproved && a.Type == model.AmendRoomChange {
			if err := c.bookings.ReplaceRooms(ctx, b.ID, b.RoomIDs); err != nil {
				log.Printf("coordinator: room reassignment for booking %d failed: %v", b.ID, err)
			}
		}
		c.confirmChannel(ctx, b, a)
		return nil
	}
}

// confirmChannel notifies the originating OTA of a terminal decision.
// Failures are logged; the confirmer owns its own bounded retries.
func (c *Coordinator) confirmChannel(ctx context.Context, b *model.Booking, a *model.OTAAmendment) {
	if c.confirmer == nil || (a.Status != model.AmendmentApproved && a.Status != model.AmendmentRejected) {
		return
	}
	conf := ChannelConfirmation{
		Channel:            a.Channel,
		ChannelBookingID:   b.ChannelBookingID,
		ChannelAmendmentID: a.ChannelAmendmentID,
		Decision:           a.Status,
		ConfirmationID:     a.AmendmentID,
		Timestamp:          a.Resolution.DecidedAt,
	}
	if err := c.confirmer.Confirm(ctx, conf); err != nil {
		log.Printf("coordinator: channel confirmation for amendment %s failed: %v", a.AmendmentID, err)
	}
}

// newAmendmentID allocates a stable identifier for an amendment,
// unique within the booking with overwhelming probability.
func newAmendmentID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("amd_%d", time.Now().UnixNano())
	}
	return "amd_" + hex.EncodeToString(buf)
}
