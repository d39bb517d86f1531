package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"matchpass/internal/types"
)

// EntitlementRepository provides data access for the entitlements table.
// Rows are created lazily on first touch and never deleted.
type EntitlementRepository struct {
	db DBTX
}

// NewEntitlementRepository creates a new EntitlementRepository backed by the
// given database connection (pool or transaction).
func NewEntitlementRepository(db DBTX) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

const entitlementColumns = `account_id, credits_remaining, credits_used_total,
	premium_until, boost_until, promo_redeemed, visibility_score,
	created_at, updated_at`

func scanEntitlement(row pgx.Row) (*types.Entitlement, error) {
	var e types.Entitlement
	err := row.Scan(
		&e.AccountID,
		&e.CreditsRemaining,
		&e.CreditsUsedTotal,
		&e.PremiumUntil,
		&e.BoostUntil,
		&e.PromoRedeemed,
		&e.VisibilityScore,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EnsureEntitlement inserts a zero-balance row if none exists.
func (r *EntitlementRepository) EnsureEntitlement(ctx context.Context, accountID string, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO entitlements (account_id, created_at, updated_at)
		 VALUES ($1, $2, $2)
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID, now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure entitlement", err)
	}
	return nil
}

// GetEntitlement returns the account's row, or not_found_entitlement.
func (r *EntitlementRepository) GetEntitlement(ctx context.Context, accountID string) (*types.Entitlement, error) {
	e, err := scanEntitlement(r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE account_id = $1`,
		accountID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get entitlement", err)
	}
	return e, nil
}

// LockEntitlement lazily creates the row and then selects it FOR UPDATE.
// Must run inside a transaction for the lock to hold.
func (r *EntitlementRepository) LockEntitlement(ctx context.Context, accountID string, now time.Time) (*types.Entitlement, error) {
	if err := r.EnsureEntitlement(ctx, accountID, now); err != nil {
		return nil, err
	}
	e, err := scanEntitlement(r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE account_id = $1 FOR UPDATE`,
		accountID,
	))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock entitlement", err)
	}
	return e, nil
}

// UpdateEntitlement writes the mutable fields of e. Credit counters are
// written as absolute values, so callers must hold the row lock.
func (r *EntitlementRepository) UpdateEntitlement(ctx context.Context, e *types.Entitlement) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE entitlements
		 SET credits_remaining = $2, premium_until = $3, boost_until = $4,
		     visibility_score = $5, updated_at = $6
		 WHERE account_id = $1`,
		e.AccountID,
		e.CreditsRemaining,
		e.PremiumUntil,
		e.BoostUntil,
		e.VisibilityScore,
		e.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update entitlement", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement not found", nil)
	}
	return nil
}

// DecrementCredit is the single-statement conditional decrement. ok=false
// means the balance was zero (or the row is missing) and nothing changed.
func (r *EntitlementRepository) DecrementCredit(ctx context.Context, accountID string, now time.Time) (int, bool, error) {
	var remaining int
	err := r.db.QueryRow(ctx,
		`UPDATE entitlements
		 SET credits_remaining = credits_remaining - 1,
		     credits_used_total = credits_used_total + 1,
		     updated_at = $2
		 WHERE account_id = $1 AND credits_remaining > 0
		 RETURNING credits_remaining`,
		accountID, now,
	).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to decrement credit", err)
	}
	return remaining, true, nil
}

// MarkPromoRedeemed applies the promotional plan while promo_redeemed is
// still false. updated=false means another redemption got there first.
func (r *EntitlementRepository) MarkPromoRedeemed(ctx context.Context, accountID string, premiumUntil time.Time, visibility int, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE entitlements
		 SET premium_until = $2, visibility_score = $3,
		     promo_redeemed = TRUE, updated_at = $4
		 WHERE account_id = $1 AND promo_redeemed = FALSE`,
		accountID, premiumUntil, visibility, now,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark promo redeemed", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TopUpCredits raises credits_remaining to floor for non-premium accounts
// that have not been topped up on day. The credit_topups insert is the
// once-per-day gate; accounts already above floor keep their balance.
func (r *EntitlementRepository) TopUpCredits(ctx context.Context, day time.Time, floor int, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`WITH due AS (
		   INSERT INTO credit_topups (account_id, day, granted_at)
		   SELECT account_id, $1::date, $3 FROM entitlements
		   WHERE premium_until IS NULL OR premium_until <= $3
		   ON CONFLICT (account_id, day) DO NOTHING
		   RETURNING account_id
		 )
		 UPDATE entitlements e
		 SET credits_remaining = GREATEST(e.credits_remaining, $2), updated_at = $3
		 FROM due
		 WHERE e.account_id = due.account_id`,
		day, floor, now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to top up daily credits", err)
	}
	return int(tag.RowsAffected()), nil
}

// VenueRepository provides data access for the venue_entitlements table.
type VenueRepository struct {
	db DBTX
}

func NewVenueRepository(db DBTX) *VenueRepository {
	return &VenueRepository{db: db}
}

// LockVenue lazily creates the venue row owned by ownerAccountID and selects
// it FOR UPDATE.
func (r *VenueRepository) LockVenue(ctx context.Context, venueID, ownerAccountID string, now time.Time) (*types.VenueEntitlement, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO venue_entitlements (venue_id, owner_account_id, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (venue_id) DO NOTHING`,
		venueID, ownerAccountID, now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to ensure venue entitlement", err)
	}

	var v types.VenueEntitlement
	err = r.db.QueryRow(ctx,
		`SELECT venue_id, owner_account_id, premium_until, boost_until,
		        visibility_score, updated_at
		 FROM venue_entitlements WHERE venue_id = $1 FOR UPDATE`,
		venueID,
	).Scan(&v.VenueID, &v.OwnerAccountID, &v.PremiumUntil, &v.BoostUntil, &v.VisibilityScore, &v.UpdatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock venue entitlement", err)
	}
	return &v, nil
}

func (r *VenueRepository) UpdateVenue(ctx context.Context, v *types.VenueEntitlement) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE venue_entitlements
		 SET premium_until = $2, boost_until = $3, visibility_score = $4, updated_at = $5
		 WHERE venue_id = $1`,
		v.VenueID, v.PremiumUntil, v.BoostUntil, v.VisibilityScore, v.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update venue entitlement", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEntitlement, "venue entitlement not found", nil)
	}
	return nil
}
