package amendment

import (
	"fmt"
	"math"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// datesChangeCutoff is the minimum notice before the current check-in
// for a dates_change to qualify for auto-approval.
const datesChangeCutoff = 24 * time.Hour

// AutoApprovalRule configures auto-approval for one amendment type.
// MaxValueChange bounds the absolute monetary impact; ExcludedFields
// lists requested-change fields that always require a human.
type AutoApprovalRule struct {
	Enabled        bool
	MaxValueChange float64
	ExcludedFields []string
}

// Evaluation is the outcome of the auto-approval decision.
type Evaluation struct {
	CanAutoApprove bool
	Reason         string
}

// DefaultAutoApprovalRules returns the rule set applied when the
// coordinator is not configured otherwise.  Types without a rule never
// auto-approve.
func DefaultAutoApprovalRules() map[string]AutoApprovalRule {
	return map[string]AutoApprovalRule{
		model.AmendSpecialRequestChange: {Enabled: true, MaxValueChange: 0},
		model.AmendGuestDetailsChange: {
			Enabled:        true,
			MaxValueChange: 0,
			ExcludedFields: []string{"email", "phone"},
		},
	}
}

// EvaluateAutoApproval decides whether an amendment may be approved
// without human review.  Denials are checked in a fixed order: the
// manual flag, rule availability, excluded fields, value impact, the
// booking being checked in, and the 24-hour cutoff for date changes.
// Excluded-field hits additionally set the manual flag on the
// amendment so the denial is durable.
func EvaluateAutoApproval(b *model.Booking, a *model.OTAAmendment, rules map[string]AutoApprovalRule, now time.Time) Evaluation {
	if a.RequiresManual {
		reason := a.FlagReason
		if reason == "" {
			reason = "amendment is flagged for manual approval"
		}
		return Evaluation{Reason: reason}
	}
	rule, ok := rules[a.Type]
	if !ok || !rule.Enabled {
		return Evaluation{Reason: fmt.Sprintf("no auto-approval rule for %s", a.Type)}
	}
	for _, field := range rule.ExcludedFields {
		if _, touched := a.RequestedChanges[field]; touched {
			a.RequiresManual = true
			a.FlagReason = fmt.Sprintf("changes to %s require manual approval", field)
			return Evaluation{Reason: a.FlagReason}
		}
	}
	if impact := valueImpact(b, a); impact > rule.MaxValueChange {
		return Evaluation{Reason: fmt.Sprintf("value impact %.2f exceeds limit %.2f", impact, rule.MaxValueChange)}
	}
	if b.Status == model.BookingCheckedIn {
		return Evaluation{Reason: "booking is checked in"}
	}
	if a.Type == model.AmendDatesChange && b.CheckIn.Sub(now) < datesChangeCutoff {
		return Evaluation{Reason: "less than 24 hours until check-in"}
	}
	return Evaluation{CanAutoApprove: true, Reason: "within auto-approval rules"}
}

// valueImpact is the absolute change to the booking total the
// amendment would cause; zero for amendments that do not touch money.
func valueImpact(b *model.Booking, a *model.OTAAmendment) float64 {
	proposed, ok := changeNumber(a.RequestedChanges, "total_amount")
	if !ok {
		return 0
	}
	return math.Abs(proposed - b.TotalAmount)
}
