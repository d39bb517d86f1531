package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"matchpass/internal/core"
	"matchpass/internal/external"
	"matchpass/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads (64 KB).
const maxWebhookBodySize = 64 * 1024

// PaymentEventPublisher hands a verified event to the fulfillment worker.
type PaymentEventPublisher interface {
	Publish(ctx context.Context, ev types.PaymentEvent) error
}

// PaymentEventHandler applies a verified event in-process.
type PaymentEventHandler interface {
	HandleEvent(ctx context.Context, ev types.PaymentEvent) error
}

// StripeWebhookHandler receives Stripe notifications. It is not behind bearer
// auth; the Stripe-Signature header is verified instead.
//
// With a publisher configured, events go to the payment-event queue and the
// worker applies them. Without one, or when publishing fails, they are applied
// inline. Once the signature checks out the response is always 200 so Stripe
// stops redelivering; processing failures are logged.
type StripeWebhookHandler struct {
	verifier  external.WebhookVerifier
	publisher PaymentEventPublisher
	events    PaymentEventHandler
	secret    types.SecretString
	logger    *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler. publisher may be nil.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	publisher PaymentEventPublisher,
	events PaymentEventHandler,
	secret types.SecretString,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:  verifier,
		publisher: publisher,
		events:    events,
		secret:    secret,
		logger:    logger,
	}
}

// RegisterRoutes mounts the webhook at the router root.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes one Stripe webhook delivery.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidBody, "failed to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(ctx, "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSignatureFailed, "missing Stripe-Signature header", nil))
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret.Unmask()); err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSignatureFailed, "webhook signature verification failed", err))
		return
	}

	ev, err := external.ParsePaymentEvent(payload)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to parse webhook event", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidBody, "invalid webhook event JSON", err))
		return
	}
	if ev == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	log := h.logger.With(
		"source_event_id", ev.SourceEventID,
		"event_type", string(ev.Type),
		"payment_id", ev.PaymentID,
		"payment_intent_id", ev.PaymentIntentID,
	)
	log.InfoContext(ctx, "processing stripe webhook event")

	h.dispatch(ctx, log, *ev)
	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) dispatch(ctx context.Context, log *slog.Logger, ev types.PaymentEvent) {
	if h.publisher != nil {
		err := h.publisher.Publish(ctx, ev)
		if err == nil {
			return
		}
		log.WarnContext(ctx, "payment event publish failed, applying inline", "error", err)
	}

	if err := h.events.HandleEvent(ctx, ev); err != nil {
		log.ErrorContext(ctx, "webhook event processing failed",
			"error", err,
			"error_kind", string(types.KindOf(err)),
		)
	}
}
