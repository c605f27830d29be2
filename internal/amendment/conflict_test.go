package amendment

import (
	"context"
	"testing"

	"github.com/stayops/ota-bridge/internal/model"
)

func TestDetectConflictsFieldOverlap(t *testing.T) {
	b := &model.Booking{OTAAmendments: []model.OTAAmendment{
		{
			AmendmentID:      "amd_old",
			Type:             model.AmendDatesChange,
			Status:           model.AmendmentPending,
			RequestedChanges: map[string]interface{}{"check_in": "2026-03-20", "check_out": "2026-03-23"},
		},
	}}
	candidate := &model.OTAAmendment{
		AmendmentID:      "amd_new",
		Type:             model.AmendDatesChange,
		Status:           model.AmendmentPending,
		RequestedChanges: map[string]interface{}{"check_in": "2026-03-21", "check_out": "2026-03-24"},
	}

	conflicts := DetectConflicts(b, candidate)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Type != ConflictField || c.WithAmendmentID != "amd_old" {
		t.Fatalf("unexpected conflict: %+v", c)
	}
	if len(c.Fields) != 2 {
		t.Fatalf("expected both fields in overlap, got %v", c.Fields)
	}
}

func TestDetectConflictsIgnoresDecidedAmendments(t *testing.T) {
	b := &model.Booking{OTAAmendments: []model.OTAAmendment{
		{AmendmentID: "amd_done", Type: model.AmendDatesChange, Status: model.AmendmentApproved,
			RequestedChanges: map[string]interface{}{"check_in": "2026-03-20"}},
		{AmendmentID: "amd_dead", Type: model.AmendDatesChange, Status: model.AmendmentSuperseded,
			RequestedChanges: map[string]interface{}{"check_in": "2026-03-21"}},
	}}
	candidate := &model.OTAAmendment{
		AmendmentID:      "amd_new",
		Type:             model.AmendDatesChange,
		RequestedChanges: map[string]interface{}{"check_in": "2026-03-22"},
	}
	if conflicts := DetectConflicts(b, candidate); len(conflicts) != 0 {
		t.Fatalf("decided amendments must not conflict: %+v", conflicts)
	}
}

func TestDetectConflictsPendingCancellation(t *testing.T) {
	b := &model.Booking{OTAAmendments: []model.OTAAmendment{
		{AmendmentID: "amd_cancel", Type: model.AmendCancellationRequest, Status: model.AmendmentPending,
			RequestedChanges: map[string]interface{}{"reason": "guest request"}},
	}}
	candidate := &model.OTAAmendment{
		AmendmentID:      "amd_dates",
		Type:             model.AmendDatesChange,
		RequestedChanges: map[string]interface{}{"check_in": "2026-03-20"},
	}
	conflicts := DetectConflicts(b, candidate)
	if len(conflicts) != 1 || conflicts[0].Type != ConflictCancellation {
		t.Fatalf("expected cancellation conflict, got %+v", conflicts)
	}

	// Another cancellation does not conflict on that axis.
	second := &model.OTAAmendment{
		AmendmentID:      "amd_cancel2",
		Type:             model.AmendCancellationRequest,
		RequestedChanges: map[string]interface{}{"note": "duplicate"},
	}
	if conflicts := DetectConflicts(b, second); len(conflicts) != 0 {
		t.Fatalf("cancellation vs cancellation flagged: %+v", conflicts)
	}
}

func TestSupersedeSameType(t *testing.T) {
	b := &model.Booking{OTAAmendments: []model.OTAAmendment{
		{AmendmentID: "amd_old", Type: model.AmendRateChange, Status: model.AmendmentPending,
			RequestedChanges: map[string]interface{}{"total_amount": float64(700)}},
	}}
	candidate := &model.OTAAmendment{
		AmendmentID:      "amd_new",
		Type:             model.AmendRateChange,
		RequestedChanges: map[string]interface{}{"total_amount": float64(750)},
	}
	conflict := Conflict{Type: ConflictField, WithAmendmentID: "amd_old", Fields: []string{"total_amount"}}

	resolved, err := SupersedeSameType(context.Background(), b, candidate, conflict)
	if err != nil || !resolved {
		t.Fatalf("resolved=%v err=%v", resolved, err)
	}
	old := b.Amendment("amd_old")
	if old.Status != model.AmendmentSuperseded {
		t.Fatalf("old amendment status = %s", old.Status)
	}
	if old.Resolution == nil || old.Resolution.DecidedBy != "system" {
		t.Fatalf("resolution not recorded: %+v", old.Resolution)
	}
}

func TestSupersedeSameTypeLeavesCrossTypeAlone(t *testing.T) {
	b := &model.Booking{OTAAmendments: []model.OTAAmendment{
		{AmendmentID: "amd_dates", Type: model.AmendDatesChange, Status: model.AmendmentPending,
			RequestedChanges: map[string]interface{}{"check_in": "2026-03-20"}},
	}}
	candidate := &model.OTAAmendment{
		AmendmentID:      "amd_rooms",
		Type:             model.AmendRoomChange,
		RequestedChanges: map[string]interface{}{"check_in": "2026-03-21"},
	}
	conflict := Conflict{Type: ConflictField, WithAmendmentID: "amd_dates", Fields: []string{"check_in"}}

	resolved, err := SupersedeSameType(context.Background(), b, candidate, conflict)
	if err != nil {
		t.Fatal(err)
	}
	if resolved {
		t.Fatal("cross-type conflict must not auto-resolve")
	}
	if b.Amendment("amd_dates").Status != model.AmendmentPending {
		t.Fatal("pending amendment mutated")
	}
}
