package types

import "time"

// PaymentEventType distinguishes the two payment events the ledger reacts to.
type PaymentEventType string

const (
	PaymentEventCompleted PaymentEventType = "payment.completed"
	PaymentEventRefunded  PaymentEventType = "payment.refunded"
)

// PaymentEvent is the SQS payload published by the Stripe webhook receiver and
// consumed by the fulfillment worker. The receiver has already verified the
// processor signature; the worker trusts the envelope.
type PaymentEvent struct {
	Type PaymentEventType `json:"type"`

	// Identity
	PaymentID       string `json:"payment_id"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	AccountID       string `json:"account_id,omitempty"`

	// Product resolution
	ProductCode string `json:"product_code"`
	TargetID    string `json:"target_id,omitempty"`
	VenueID     string `json:"venue_id,omitempty"`

	// Source event id from the processor, kept for log correlation.
	SourceEventID string    `json:"source_event_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ApplyRequest carries everything needed to fulfill one payment.
type ApplyRequest struct {
	PaymentID       string `json:"payment_id" validate:"required,max=255"`
	AccountID       string `json:"account_id" validate:"required,max=255"`
	ProductCode     string `json:"product_code" validate:"max=100"`
	TargetID        string `json:"target_id,omitempty" validate:"omitempty,max=255"`
	VenueID         string `json:"venue_id,omitempty" validate:"omitempty,max=255"`
	PaymentIntentID string `json:"payment_intent_id,omitempty" validate:"omitempty,max=255"`
}

// ApplyRequestFromEvent converts a completed-payment event into an ApplyRequest.
func ApplyRequestFromEvent(ev PaymentEvent) ApplyRequest {
	return ApplyRequest{
		PaymentID:       ev.PaymentID,
		AccountID:       ev.AccountID,
		ProductCode:     ev.ProductCode,
		TargetID:        ev.TargetID,
		VenueID:         ev.VenueID,
		PaymentIntentID: ev.PaymentIntentID,
	}
}
