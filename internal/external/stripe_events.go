package external

import (
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"matchpass/internal/types"
)

// Metadata keys older checkout sessions used. Sessions still in flight at
// cutover carry these instead of the current ones.
const (
	legacyMetaPlanType    = "plan_type"
	legacyMetaUserID      = "user_id"
	legacyMetaTherapistID = "therapist_id"
	legacyMetaSalongID    = "salong_id"
)

// ParsePaymentEvent translates a verified Stripe event into a ledger
// PaymentEvent. It returns (nil, nil) for events the ledger ignores: other
// event types and checkout sessions that are not paid.
//
// checkout.session.completed maps to payment.completed with the session id as
// payment id. charge.refunded maps to payment.refunded keyed by the payment
// intent, which is all a charge carries back to the original checkout.
func ParsePaymentEvent(payload []byte) (*types.PaymentEvent, error) {
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decoding stripe event: %w", err)
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data object", ev.ID)
	}
	occurred := time.Unix(ev.Created, 0).UTC()

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decoding checkout session: %w", err)
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return nil, nil
		}

		out := &types.PaymentEvent{
			Type:          types.PaymentEventCompleted,
			PaymentID:     sess.ID,
			AccountID:     sess.Metadata[types.MetaAccountID],
			ProductCode:   sess.Metadata[types.MetaProductCode],
			TargetID:      sess.Metadata[types.MetaTargetID],
			VenueID:       sess.Metadata[types.MetaVenueID],
			SourceEventID: ev.ID,
			OccurredAt:    occurred,
		}
		if out.AccountID == "" {
			out.AccountID = firstNonEmpty(sess.Metadata[legacyMetaUserID], sess.ClientReferenceID)
		}
		if out.ProductCode == "" {
			out.ProductCode = sess.Metadata[legacyMetaPlanType]
		}
		if out.TargetID == "" {
			out.TargetID = firstNonEmpty(sess.Metadata[legacyMetaTherapistID], sess.Metadata[legacyMetaSalongID])
		}
		if sess.PaymentIntent != nil {
			out.PaymentIntentID = sess.PaymentIntent.ID
		}
		return out, nil

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decoding charge: %w", err)
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return nil, nil
		}
		return &types.PaymentEvent{
			Type:            types.PaymentEventRefunded,
			PaymentIntentID: ch.PaymentIntent.ID,
			AccountID:       ch.Metadata[types.MetaAccountID],
			SourceEventID:   ev.ID,
			OccurredAt:      occurred,
		}, nil
	}

	return nil, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
