package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"matchpass/internal/core"
	"matchpass/internal/types"
)

// PromoRedeemer applies promotional codes.
type PromoRedeemer interface {
	Redeem(ctx context.Context, accountID string, role types.Role, code string) (*types.PromoResult, error)
}

// CheckoutCreator opens one-time checkout sessions.
type CheckoutCreator interface {
	Create(ctx context.Context, accountID string, req types.CheckoutRequest) (*types.CheckoutSession, error)
}

// RedeemPromoRequest is the body of POST /v1/promo/redeem.
type RedeemPromoRequest struct {
	Code string `json:"code" validate:"required,promo_code"`
}

// PurchaseHandler serves promo redemption and checkout creation.
type PurchaseHandler struct {
	promo     PromoRedeemer
	checkout  CheckoutCreator
	validator *core.Validator
	logger    *slog.Logger
}

// NewPurchaseHandler creates a PurchaseHandler.
func NewPurchaseHandler(promo PromoRedeemer, checkout CheckoutCreator, v *core.Validator, l *slog.Logger) *PurchaseHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PurchaseHandler{promo: promo, checkout: checkout, validator: v, logger: l}
}

// RegisterRoutes mounts the purchase endpoints.
func (h *PurchaseHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.RequireAccount)
		r.Post("/promo/redeem", h.RedeemPromo)
		r.Post("/checkout", h.CreateCheckout)
	})
}

// RedeemPromo handles POST /v1/promo/redeem. The caller's role comes from the
// token, never from the body.
func (h *PurchaseHandler) RedeemPromo(w http.ResponseWriter, r *http.Request) {
	var req RedeemPromoRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	actor, _ := types.GetActor(r.Context())
	res, err := h.promo.Redeem(r.Context(), actor.ID, actor.Role, req.Code)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: res})
}

// CreateCheckout handles POST /v1/checkout.
func (h *PurchaseHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req types.CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	actor, _ := types.GetActor(r.Context())
	sess, err := h.checkout.Create(r.Context(), actor.ID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"account_id", actor.ID,
		"product_code", req.ProductCode,
		"session_id", sess.ID,
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: sess})
}
