package billing

import (
	"context"
	"fmt"

	"matchpass/internal/types"
)

// HandleEvent dispatches a verified payment event. Completed payments are
// applied; refunds revoke the unlock grants of the payment the intent
// belongs to. A duplicate completion is success.
//
// The returned error keeps its AppError code so queue consumers can tell a
// retryable failure (types.IsTransient) from a poison message.
func (s *FulfillmentService) HandleEvent(ctx context.Context, ev types.PaymentEvent) error {
	switch ev.Type {
	case types.PaymentEventCompleted:
		_, err := s.Apply(ctx, types.ApplyRequestFromEvent(ev))
		return err
	case types.PaymentEventRefunded:
		_, err := s.RevokeByIntent(ctx, ev.PaymentIntentID)
		return err
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidBody,
			fmt.Sprintf("unsupported payment event type %q", ev.Type), nil)
	}
}
