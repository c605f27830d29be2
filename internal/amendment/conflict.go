package amendment

import (
	"context"
	"fmt"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// Conflict types.
const (
	ConflictField        = "field_conflict"
	ConflictCancellation = "cancellation_conflict"
)

// Conflict describes a logical incompatibility between the incoming
// amendment and one already pending on the same booking.
type Conflict struct {
	Type            string   `json:"type"`
	WithAmendmentID string   `json:"with_amendment_id"`
	Fields          []string `json:"fields,omitempty"`
	Description     string   `json:"description"`
}

// DetectConflicts compares the candidate amendment against every other
// open amendment on the booking.  A field conflict arises when the two
// touch any of the same booking fields; a cancellation conflict arises
// when a cancellation is pending and the candidate is not itself a
// cancellation.
func DetectConflicts(b *model.Booking, candidate *model.OTAAmendment) []Conflict {
	var conflicts []Conflict
	for _, pending := range b.PendingAmendments() {
		if pending.AmendmentID == candidate.AmendmentID {
			continue
		}
		if overlap := fieldOverlap(candidate, pending); len(overlap) > 0 {
			conflicts = append(conflicts, Conflict{
				Type:            ConflictField,
				WithAmendmentID: pending.AmendmentID,
				Fields:          overlap,
				Description:     fmt.Sprintf("fields %v are already modified by pending amendment %s", overlap, pending.AmendmentID),
			})
		}
		if pending.Type == model.AmendCancellationRequest && candidate.Type != model.AmendCancellationRequest {
			conflicts = append(conflicts, Conflict{
				Type:            ConflictCancellation,
				WithAmendmentID: pending.AmendmentID,
				Description:     fmt.Sprintf("a cancellation request %s is pending on this booking", pending.AmendmentID),
			})
		}
	}
	return conflicts
}

func fieldOverlap(a, b *model.OTAAmendment) []string {
	var overlap []string
	for field := range a.RequestedChanges {
		if _, ok := b.RequestedChanges[field]; ok {
			overlap = append(overlap, field)
		}
	}
	return overlap
}

// ResolutionStrategy attempts to resolve one conflict automatically.
// It returns true when the conflict no longer blocks the candidate;
// strategies may mutate the booking's amendments (e.g. superseding an
// older pending record) but must not save.
type ResolutionStrategy func(ctx context.Context, b *model.Booking, candidate *model.OTAAmendment, c Conflict) (bool, error)

// SupersedeSameType resolves a field conflict between two amendments
// of the same type by terminating the older pending one in favour of
// the newer.  Conflicts across types are left for manual review.
func SupersedeSameType(_ context.Context, b *model.Booking, candidate *model.OTAAmendment, c Conflict) (bool, error) {
	older := b.Amendment(c.WithAmendmentID)
	if older == nil || older.Terminal() {
		return false, nil
	}
	if older.Type != candidate.Type {
		return false, nil
	}
	older.Status = model.AmendmentSuperseded
	older.Resolution = &model.Resolution{
		DecidedBy: "system",
		DecidedAt: time.Now().UTC(),
		Reason:    fmt.Sprintf("superseded by newer amendment %s", candidate.AmendmentID),
	}
	return true, nil
}

// DefaultStrategies returns the resolution strategies registered out
// of the box: same-type supersede for field conflicts.  Cancellation
// conflicts always go to manual review.
func DefaultStrategies() map[string]ResolutionStrategy {
	return map[string]ResolutionStrategy{
		ConflictField: SupersedeSameType,
	}
}
