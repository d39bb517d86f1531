package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"matchpass/internal/types"
)

// GrantRepository provides data access for the unlock_grants table. Rows are
// inserted or stamped revoked; nothing deletes them.
type GrantRepository struct {
	db DBTX
}

// NewGrantRepository creates a new GrantRepository backed by the given
// database connection (pool or transaction).
func NewGrantRepository(db DBTX) *GrantRepository {
	return &GrantRepository{db: db}
}

const grantColumns = `id, account_id, target_id, granted_at, expires_at, payment_id, revoked_at`

func scanGrant(row pgx.Row) (types.UnlockGrant, error) {
	var g types.UnlockGrant
	err := row.Scan(&g.ID, &g.AccountID, &g.TargetID, &g.GrantedAt, &g.ExpiresAt, &g.PaymentID, &g.RevokedAt)
	return g, err
}

func (r *GrantRepository) InsertGrant(ctx context.Context, g *types.UnlockGrant) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO unlock_grants (`+grantColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.AccountID, g.TargetID, g.GrantedAt, g.ExpiresAt, g.PaymentID, g.RevokedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert unlock grant", err)
	}
	return nil
}

// LatestActiveGrant returns the unrevoked grant with the furthest expiry
// after now, or nil.
func (r *GrantRepository) LatestActiveGrant(ctx context.Context, accountID, targetID string, now time.Time) (*types.UnlockGrant, error) {
	g, err := scanGrant(r.db.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM unlock_grants
		 WHERE account_id = $1 AND target_id = $2
		   AND revoked_at IS NULL AND expires_at > $3
		 ORDER BY expires_at DESC
		 LIMIT 1`,
		accountID, targetID, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query unlock grant", err)
	}
	return &g, nil
}

// ListGrants returns every grant held by the account, newest first.
func (r *GrantRepository) ListGrants(ctx context.Context, accountID string) ([]types.UnlockGrant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+grantColumns+` FROM unlock_grants
		 WHERE account_id = $1
		 ORDER BY granted_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list unlock grants", err)
	}
	defer rows.Close()

	var out []types.UnlockGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan unlock grant", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating unlock grants", err)
	}
	return out, nil
}

// RevokeGrantsByPayment stamps revoked_at on the payment's unrevoked grants.
func (r *GrantRepository) RevokeGrantsByPayment(ctx context.Context, paymentID string, at time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE unlock_grants SET revoked_at = $2
		 WHERE payment_id = $1 AND revoked_at IS NULL`,
		paymentID, at,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to revoke unlock grants", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountGrantsExpiredBetween counts unrevoked grants with expires_at in
// [from, to).
func (r *GrantRepository) CountGrantsExpiredBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM unlock_grants
		 WHERE revoked_at IS NULL AND expires_at >= $1 AND expires_at < $2`,
		from, to,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count expired grants", err)
	}
	return n, nil
}
