// Package handlers contains the HTTP handlers for the ledger API.
//
// Each handler defines the narrow service contract it needs and receives the
// implementation through its constructor, so tests can swap in fakes.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"matchpass/internal/core"
	"matchpass/internal/ledger"
	"matchpass/internal/types"
)

// CreditService spends swipe credits and reads the entitlement row.
type CreditService interface {
	Consume(ctx context.Context, accountID, targetID string, action types.Action) (int, error)
	Entitlement(ctx context.Context, accountID string) (*types.Entitlement, error)
}

// UsageReporter reports the advisory daily usage counter.
type UsageReporter interface {
	DailyUsage(ctx context.Context, accountID string) (types.DailyUsage, error)
}

// UnlockReader answers unlock queries for the caller.
type UnlockReader interface {
	Status(ctx context.Context, accountID, targetID string) (ledger.UnlockStatus, error)
	List(ctx context.Context, accountID string) (types.UnlockList, error)
}

// ConsumeRequest is the body of POST /v1/credits/consume.
type ConsumeRequest struct {
	TargetID string `json:"target_id" validate:"required,max=255"`
	Action   string `json:"action" validate:"required,ledger_action"`
}

// ConsumeResponse reports the balance after a successful spend.
type ConsumeResponse struct {
	CreditsRemaining int `json:"credits_remaining"`
}

// EntitlementResponse is the entitlement summary rendered by the plan and
// access timers.
type EntitlementResponse struct {
	CreditsRemaining int        `json:"credits_remaining"`
	CreditsUsedTotal int        `json:"credits_used_total"`
	PremiumUntil     *time.Time `json:"premium_until,omitempty"`
	PremiumActive    bool       `json:"premium_active"`
	BoostUntil       *time.Time `json:"boost_until,omitempty"`
	BoostActive      bool       `json:"boost_active"`
	PromoRedeemed    bool       `json:"promo_redeemed"`
	VisibilityScore  int        `json:"visibility_score"`
}

// LedgerHandler serves the caller's own credits, usage and unlocks.
type LedgerHandler struct {
	credits   CreditService
	usage     UsageReporter
	unlocks   UnlockReader
	clock     types.Clock
	validator *core.Validator
	logger    *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(
	credits CreditService,
	usage UsageReporter,
	unlocks UnlockReader,
	clock types.Clock,
	v *core.Validator,
	l *slog.Logger,
) *LedgerHandler {
	if l == nil {
		l = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &LedgerHandler{
		credits:   credits,
		usage:     usage,
		unlocks:   unlocks,
		clock:     clock,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the account-scoped ledger endpoints.
func (h *LedgerHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.RequireAccount)
		r.Post("/credits/consume", h.Consume)
		r.Get("/credits/daily-usage", h.DailyUsage)
		r.Get("/unlocks", h.ListUnlocks)
		r.Get("/unlocks/{target_id}", h.UnlockStatus)
		r.Get("/entitlement", h.Entitlement)
	})
}

// Consume handles POST /v1/credits/consume. A refused spend is a 402 with
// error_kind InsufficientCredits and leaves the ledger untouched.
func (h *LedgerHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	action, _ := types.ParseAction(req.Action)

	actor, _ := types.GetActor(r.Context())
	remaining, err := h.credits.Consume(r.Context(), actor.ID, req.TargetID, action)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ConsumeResponse{CreditsRemaining: remaining}})
}

// DailyUsage handles GET /v1/credits/daily-usage.
func (h *LedgerHandler) DailyUsage(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	usage, err := h.usage.DailyUsage(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: usage})
}

// UnlockStatus handles GET /v1/unlocks/{target_id}.
func (h *LedgerHandler) UnlockStatus(w http.ResponseWriter, r *http.Request) {
	targetID := strings.TrimSpace(chi.URLParam(r, "target_id"))
	if targetID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationTargetRequired, "target_id is required", nil))
		return
	}

	actor, _ := types.GetActor(r.Context())
	status, err := h.unlocks.Status(r.Context(), actor.ID, targetID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: status})
}

// ListUnlocks handles GET /v1/unlocks.
func (h *LedgerHandler) ListUnlocks(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	list, err := h.unlocks.List(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

// Entitlement handles GET /v1/entitlement. Activity flags are evaluated
// against the server clock at read time.
func (h *LedgerHandler) Entitlement(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	e, err := h.credits.Entitlement(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := h.clock.Now()
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: EntitlementResponse{
		CreditsRemaining: e.CreditsRemaining,
		CreditsUsedTotal: e.CreditsUsedTotal,
		PremiumUntil:     e.PremiumUntil,
		PremiumActive:    e.PremiumActive(now),
		BoostUntil:       e.BoostUntil,
		BoostActive:      e.BoostActive(now),
		PromoRedeemed:    e.PromoRedeemed,
		VisibilityScore:  e.VisibilityScore,
	}})
}
