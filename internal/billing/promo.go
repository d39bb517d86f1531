package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"matchpass/internal/types"
)

// Promo grant constants.
const (
	promoPremiumFor   = 90 * day
	promoVisibility   = 3
	promoPlanApplied  = "premium"
	discountPlanType  = "premium"
	discountFreeMonth = "free_months"
)

// PromoStore defines the persistence needed by PromoService.
type PromoStore interface {
	EnsureEntitlement(ctx context.Context, accountID string, now time.Time) error
	GetEntitlement(ctx context.Context, accountID string) (*types.Entitlement, error)

	// GetDiscountCode returns the stored code, or nil if it does not exist.
	GetDiscountCode(ctx context.Context, code string) (*types.DiscountCode, error)

	BeginTx(ctx context.Context) (PromoTx, error)
}

// PromoTx is the transactional half of PromoStore. Both writes are
// conditional, so concurrent redemptions cannot both succeed.
type PromoTx interface {
	// InsertRedemption logs the redemption keyed by account_id.
	// inserted=false means the account already has a redemption.
	//
	// SQL: INSERT INTO promo_redemptions (account_id, code, redeemed_at)
	//      VALUES ($1, $2, $3) ON CONFLICT (account_id) DO NOTHING
	InsertRedemption(ctx context.Context, accountID, code string, at time.Time) (inserted bool, err error)

	// MarkPromoRedeemed applies the promotional plan only while
	// promo_redeemed is still false.
	//
	// SQL: UPDATE entitlements SET premium_until = $2, visibility_score = $3,
	//             promo_redeemed = TRUE, updated_at = $4
	//      WHERE account_id = $1 AND promo_redeemed = FALSE
	MarkPromoRedeemed(ctx context.Context, accountID string, premiumUntil time.Time, visibility int, now time.Time) (updated bool, err error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// PromoService validates and applies one-time promotional codes.
type PromoService struct {
	store        PromoStore
	builtinCode  string
	eligibleRole types.Role
	clock        types.Clock
	metrics      types.LedgerMetrics
	logger       *slog.Logger
}

// PromoServiceConfig holds the dependencies for PromoService.
type PromoServiceConfig struct {
	Store        PromoStore
	BuiltinCode  string     // free-months code that needs no table row
	EligibleRole types.Role // only this role may redeem
	Clock        types.Clock
	Metrics      types.LedgerMetrics
	Logger       *slog.Logger
}

func NewPromoService(cfg PromoServiceConfig) *PromoService {
	s := &PromoService{
		store:        cfg.Store,
		builtinCode:  NormalizeCode(cfg.BuiltinCode),
		eligibleRole: cfg.EligibleRole,
		clock:        cfg.Clock,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
	if s.eligibleRole == "" {
		s.eligibleRole = types.RoleProvider
	}
	if s.clock == nil {
		s.clock = types.RealClock{}
	}
	if s.metrics == nil {
		s.metrics = types.NoopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// NormalizeCode trims and upper-cases a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem applies a promotional code to the account.
//
//  1. Role must be the eligible role.
//  2. promo_redeemed must be false (fast precondition).
//  3. The code must be the built-in code, or an active, unexpired premium
//     free-months row in discount_codes.
//  4. In one transaction: insert the redemption log row (unique per account)
//     and conditionally flip promo_redeemed. Either write losing a race
//     reports AlreadyRedeemed.
//
// On success premium_until = now+90d and visibility_score = 3. Credits are
// not touched.
func (s *PromoService) Redeem(ctx context.Context, accountID string, role types.Role, code string) (*types.PromoResult, error) {
	code = NormalizeCode(code)
	if accountID == "" || code == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "account and code are required", nil)
	}

	res, err := s.redeem(ctx, accountID, role, code)
	outcome := types.OutcomeSuccess
	if err != nil {
		outcome = string(types.KindOf(err))
	}
	s.metrics.RecordRedemption(ctx, outcome)
	s.logger.InfoContext(ctx, "promo redemption attempt",
		"account_id", accountID,
		"code", code,
		"outcome", outcome,
	)
	return res, err
}

func (s *PromoService) redeem(ctx context.Context, accountID string, role types.Role, code string) (*types.PromoResult, error) {
	if role != s.eligibleRole {
		return nil, types.NewAppErrorWithDetails(types.ErrCodePermissionRoleNotEligible,
			"this promotion is not available for your account type", nil,
			map[string]any{"eligible_role": string(s.eligibleRole)})
	}

	now := s.clock.Now()

	if err := s.store.EnsureEntitlement(ctx, accountID, now); err != nil {
		return nil, err
	}
	ent, err := s.store.GetEntitlement(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if ent.PromoRedeemed {
		return nil, alreadyRedeemed()
	}

	if code != s.builtinCode {
		if err := s.checkDiscountCode(ctx, code, now); err != nil {
			return nil, err
		}
	}

	premiumUntil := now.Add(promoPremiumFor)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning promo transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted, err := tx.InsertRedemption(ctx, accountID, code, now)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, alreadyRedeemed()
	}

	updated, err := tx.MarkPromoRedeemed(ctx, accountID, premiumUntil, promoVisibility, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, alreadyRedeemed()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit promo redemption", err)
	}

	return &types.PromoResult{PlanApplied: promoPlanApplied, PremiumUntil: premiumUntil}, nil
}

func (s *PromoService) checkDiscountCode(ctx context.Context, code string, now time.Time) error {
	dc, err := s.store.GetDiscountCode(ctx, code)
	if err != nil {
		return err
	}
	if dc == nil || !dc.Active {
		return types.NewAppError(types.ErrCodePromoInvalidOrExpired, "invalid or expired code", nil)
	}
	if dc.ExpiresAt != nil && dc.ExpiresAt.Before(now) {
		return types.NewAppError(types.ErrCodePromoInvalidOrExpired, "code has expired", nil)
	}
	if dc.PlanType != discountPlanType || dc.DiscountType != discountFreeMonth {
		return types.NewAppError(types.ErrCodePromoNotApplicable, "code is not valid for free premium months", nil)
	}
	return nil
}

func alreadyRedeemed() error {
	return types.NewAppError(types.ErrCodeConflictPromoRedeemed, "a promotional code has already been redeemed", nil)
}
