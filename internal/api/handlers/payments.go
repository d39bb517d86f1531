package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"matchpass/internal/core"
	"matchpass/internal/types"
)

// PaymentFulfiller applies and reverses confirmed payments.
type PaymentFulfiller interface {
	Apply(ctx context.Context, req types.ApplyRequest) (*types.ApplyResult, error)
	Revoke(ctx context.Context, paymentID string) (int, error)
	RevokeByIntent(ctx context.Context, paymentIntentID string) (int, error)
}

// RevokePaymentRequest is the body of POST /v1/internal/revoke-payment.
type RevokePaymentRequest struct {
	PaymentID string `json:"payment_id" validate:"required,max=255"`
}

// RevokePaymentResponse reports how many unlock grants were revoked.
type RevokePaymentResponse struct {
	Revoked int `json:"revoked"`
}

// PaymentsHandler exposes fulfillment to internal callers holding the
// service key.
type PaymentsHandler struct {
	fulfiller PaymentFulfiller
	validator *core.Validator
	logger    *slog.Logger
}

// NewPaymentsHandler creates a PaymentsHandler.
func NewPaymentsHandler(f PaymentFulfiller, v *core.Validator, l *slog.Logger) *PaymentsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PaymentsHandler{fulfiller: f, validator: v, logger: l}
}

// RegisterRoutes mounts the internal fulfillment endpoints.
func (h *PaymentsHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.RequireService)
		r.Post("/internal/apply-payment", h.ApplyPayment)
		r.Post("/internal/revoke-payment", h.RevokePayment)
	})
}

// ApplyPayment handles POST /v1/internal/apply-payment. A repeated payment id
// is a 200 with applied=false; it is never an error.
func (h *PaymentsHandler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req types.ApplyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.fulfiller.Apply(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: res})
}

// RevokePayment handles POST /v1/internal/revoke-payment.
func (h *PaymentsHandler) RevokePayment(w http.ResponseWriter, r *http.Request) {
	var req RevokePaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	n, err := h.fulfiller.Revoke(r.Context(), req.PaymentID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: RevokePaymentResponse{Revoked: n}})
}
