package amendment

import (
	"testing"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

func TestEvaluateAutoApproval(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rules := DefaultAutoApprovalRules()

	booking := func() *model.Booking {
		return &model.Booking{
			Status:      model.BookingConfirmed,
			CheckIn:     now.Add(5 * 24 * time.Hour),
			TotalAmount: 600,
		}
	}

	t.Run("special request auto-approves", func(t *testing.T) {
		a := &model.OTAAmendment{Type: model.AmendSpecialRequestChange,
			RequestedChanges: map[string]interface{}{"special_requests": "high floor"}}
		ev := EvaluateAutoApproval(booking(), a, rules, now)
		if !ev.CanAutoApprove {
			t.Fatalf("denied: %s", ev.Reason)
		}
	})

	t.Run("flagged amendment never auto-approves", func(t *testing.T) {
		a := &model.OTAAmendment{Type: model.AmendSpecialRequestChange, RequiresManual: true,
			FlagReason:       "rate change 50% exceeds 20% threshold",
			RequestedChanges: map[string]interface{}{"special_requests": "x"}}
		ev := EvaluateAutoApproval(booking(), a, rules, now)
		if ev.CanAutoApprove {
			t.Fatal("flagged amendment auto-approved")
		}
		if ev.Reason != a.FlagReason {
			t.Errorf("reason = %q", ev.Reason)
		}
	})

	t.Run("type without rule goes to review", func(t *testing.T) {
		a := &model.OTAAmendment{Type: model.AmendRateChange,
			RequestedChanges: map[string]interface{}{"total_amount": float64(620)}}
		if ev := EvaluateAutoApproval(booking(), a, rules, now); ev.CanAutoApprove {
			t.Fatal("rate change must not auto-approve with default rules")
		}
	})

	t.Run("guest name change auto-approves", func(t *testing.T) {
		a := &model.OTAAmendment{Type: model.AmendGuestDetailsChange,
			RequestedChanges: map[string]interface{}{"name": "Anna Meyer"}}
		ev := EvaluateAutoApproval(booking(), a, rules, now)
		if !ev.CanAutoApprove {
			t.Fatalf("denied: %s", ev.Reason)
		}
	})

	t.Run("excluded field denies and flags", func(t *testing.T) {
		a := &model.OTAAmendment{Type: model.AmendGuestDetailsChange,
			RequestedChanges: map[string]interface{}{"email": "new@example.com"}}
		ev := EvaluateAutoApproval(booking(), a, rules, now)
		if ev.CanAutoApprove {
			t.Fatal("email change auto-approved")
		}
		if !a.RequiresManual {
			t.Fatal("excluded-field denial must set the manual flag")
		}
	})

	t.Run("value impact above limit denies", func(t *testing.T) {
		local := map[string]AutoApprovalRule{
			model.AmendRateChange: {Enabled: true, MaxValueChange: 50},
		}
		a := &model.OTAAmendment{Type: model.AmendRateChange,
			RequestedChanges: map[string]interface{}{"total_amount": float64(700)}}
		if ev := EvaluateAutoApproval(booking(), a, local, now); ev.CanAutoApprove {
			t.Fatal("impact of 100 exceeded limit 50 but approved")
		}
		within := &model.OTAAmendment{Type: model.AmendRateChange,
			RequestedChanges: map[string]interface{}{"total_amount": float64(640)}}
		if ev := EvaluateAutoApproval(booking(), within, local, now); !ev.CanAutoApprove {
			t.Fatalf("impact of 40 within limit denied: %s", ev.Reason)
		}
	})

	t.Run("checked-in booking denies", func(t *testing.T) {
		b := booking()
		b.Status = model.BookingCheckedIn
		a := &model.OTAAmendment{Type: model.AmendSpecialRequestChange,
			RequestedChanges: map[string]interface{}{"special_requests": "x"}}
		if ev := EvaluateAutoApproval(b, a, rules, now); ev.CanAutoApprove {
			t.Fatal("checked-in booking auto-approved")
		}
	})

	t.Run("dates change close to check-in denies", func(t *testing.T) {
		local := map[string]AutoApprovalRule{
			model.AmendDatesChange: {Enabled: true, MaxValueChange: 0},
		}
		b := booking()
		b.CheckIn = now.Add(12 * time.Hour)
		a := &model.OTAAmendment{Type: model.AmendDatesChange,
			RequestedChanges: map[string]interface{}{"check_out": "2026-03-20"}}
		if ev := EvaluateAutoApproval(b, a, local, now); ev.CanAutoApprove {
			t.Fatal("date change under 24h auto-approved")
		}
		b.CheckIn = now.Add(48 * time.Hour)
		if ev := EvaluateAutoApproval(b, a, local, now); !ev.CanAutoApprove {
			t.Fatalf("date change with 48h notice denied: %s", ev.Reason)
		}
	})
}

func TestReviewPriority(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		checkIn time.Time
		total   float64
		vip     bool
		want    int
	}{
		{"far out, modest", now.Add(30 * 24 * time.Hour), 500, false, 5},
		{"within a week", now.Add(6 * 24 * time.Hour), 500, false, 6},
		{"within 72h", now.Add(48 * time.Hour), 500, false, 8},
		{"within 24h", now.Add(12 * time.Hour), 500, false, 10},
		{"high value", now.Add(30 * 24 * time.Hour), 1500, false, 7},
		{"vip", now.Add(30 * 24 * time.Hour), 500, true, 8},
		{"everything, capped", now.Add(6 * time.Hour), 2000, true, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &model.Booking{CheckIn: tc.checkIn, TotalAmount: tc.total, Guest: model.Guest{VIP: tc.vip}}
			if got := ReviewPriority(b, now); got != tc.want {
				t.Fatalf("ReviewPriority = %d, want %d", got, tc.want)
			}
		})
	}
}
