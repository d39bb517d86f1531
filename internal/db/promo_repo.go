package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"matchpass/internal/types"
)

// PromoRepository provides data access for discount_codes and the
// promo_redemptions log.
type PromoRepository struct {
	db DBTX
}

func NewPromoRepository(db DBTX) *PromoRepository {
	return &PromoRepository{db: db}
}

// GetDiscountCode returns the stored code, or nil if none matches.
// Codes are stored upper-case.
func (r *PromoRepository) GetDiscountCode(ctx context.Context, code string) (*types.DiscountCode, error) {
	var dc types.DiscountCode
	err := r.db.QueryRow(ctx,
		`SELECT code, discount_type, discount_value, plan_type, active, expires_at
		 FROM discount_codes WHERE code = $1`,
		code,
	).Scan(&dc.Code, &dc.DiscountType, &dc.DiscountValue, &dc.PlanType, &dc.Active, &dc.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get discount code", err)
	}
	return &dc, nil
}

// InsertRedemption logs a redemption. account_id is the primary key, so an
// account can appear at most once; inserted=false reports that.
func (r *PromoRepository) InsertRedemption(ctx context.Context, accountID, code string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO promo_redemptions (account_id, code, redeemed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID, code, at,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert promo redemption", err)
	}
	return tag.RowsAffected() > 0, nil
}
