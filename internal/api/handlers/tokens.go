package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"matchpass/internal/core"
	"matchpass/internal/types"
)

// TokenIssuer mints and revokes account bearer tokens. The identity service
// calls it after sign-in and sign-out.
type TokenIssuer interface {
	IssueToken(ctx context.Context, accountID string, role types.Role, ttl time.Duration) (string, error)
	RevokeToken(ctx context.Context, token string) error
}

// IssueTokenRequest is the body of POST /v1/internal/tokens.
type IssueTokenRequest struct {
	AccountID  string     `json:"account_id" validate:"required,max=255"`
	Role       types.Role `json:"role" validate:"required,oneof=member provider venue"`
	TTLSeconds int        `json:"ttl_seconds" validate:"min=0"`
}

// IssueTokenResponse carries the plaintext token. It is shown exactly once.
type IssueTokenResponse struct {
	Token string `json:"token"`
}

// RevokeTokenRequest is the body of POST /v1/internal/tokens/revoke.
type RevokeTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type TokensHandler struct {
	issuer    TokenIssuer
	validator *core.Validator
	logger    *slog.Logger
}

func NewTokensHandler(issuer TokenIssuer, v *core.Validator, l *slog.Logger) *TokensHandler {
	if l == nil {
		l = slog.Default()
	}
	return &TokensHandler{issuer: issuer, validator: v, logger: l}
}

func (h *TokensHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.RequireService)
		r.Post("/internal/tokens", h.Issue)
		r.Post("/internal/tokens/revoke", h.Revoke)
	})
}

// Issue handles POST /v1/internal/tokens.
func (h *TokensHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	token, err := h.issuer.IssueToken(r.Context(), req.AccountID, req.Role, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: IssueTokenResponse{Token: token}})
}

// Revoke handles POST /v1/internal/tokens/revoke.
func (h *TokensHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeTokenRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.issuer.RevokeToken(r.Context(), req.Token); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
