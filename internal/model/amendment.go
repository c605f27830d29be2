package model

import "time"

// Amendment types recognised by the pipeline.  Unknown types are
// rejected at the ingress boundary before validation runs.
const (
	AmendDatesChange          = "dates_change"
	AmendRateChange           = "rate_change"
	AmendRoomChange           = "room_change"
	AmendGuestDetailsChange   = "guest_details_change"
	AmendSpecialRequestChange = "special_request_change"
	AmendCancellationRequest  = "cancellation_request"
)

// Amendment statuses.  Approved, rejected and superseded are terminal;
// conflicted may still move to approved or rejected after a manual
// decision.
const (
	AmendmentPending    = "pending"
	AmendmentApproved   = "approved"
	AmendmentRejected   = "rejected"
	AmendmentSuperseded = "superseded"
	AmendmentConflicted = "conflicted"
)

// KnownAmendmentType reports whether t is one of the recognised
// amendment type tags.
func KnownAmendmentType(t string) bool {
	switch t {
	case AmendDatesChange, AmendRateChange, AmendRoomChange,
		AmendGuestDetailsChange, AmendSpecialRequestChange, AmendCancellationRequest:
		return true
	}
	return false
}

// Resolution records how and by whom an amendment left the pending
// state.  AutoApproved distinguishes the system actor from a human
// reviewer.
type Resolution struct {
	DecidedBy    string    `json:"decided_by"`
	DecidedAt    time.Time `json:"decided_at"`
	Reason       string    `json:"reason,omitempty"`
	AutoApproved bool      `json:"auto_approved,omitempty"`
}

// OTAAmendment is one booking-modification request received from a
// channel.  Records are append-only on the booking; only the status,
// resolution and manual-approval flags mutate after creation.
type OTAAmendment struct {
	AmendmentID        string                 `json:"amendment_id"`
	Channel            string                 `json:"channel"`
	ChannelAmendmentID string                 `json:"channel_amendment_id,omitempty"`
	Type               string                 `json:"amendment_type"`
	RequestedChanges   map[string]interface{} `json:"requested_changes"`
	RequestedAt        time.Time              `json:"requested_at"`
	Status             string                 `json:"amendment_status"`
	Resolution         *Resolution            `json:"resolution,omitempty"`
	RequiresManual     bool                   `json:"requires_manual_approval,omitempty"`
	FlagReason         string                 `json:"flag_reason,omitempty"`
}

// Open reports whether the amendment still awaits a decision.
func (a *OTAAmendment) Open() bool {
	return a.Status == AmendmentPending || a.Status == AmendmentConflicted
}

// Terminal reports whether the amendment has reached a final state and
// must no longer be mutated.
func (a *OTAAmendment) Terminal() bool {
	switch a.Status {
	case AmendmentApproved, AmendmentRejected, AmendmentSuperseded:
		return true
	}
	return false
}

// Fields returns the set of booking fields the amendment touches.
func (a *OTAAmendment) Fields() []string {
	fields := make([]string, 0, len(a.RequestedChanges))
	for k := range a.RequestedChanges {
		fields = append(fields, k)
	}
	return fields
}
