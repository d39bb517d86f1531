package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"matchpass/internal/types"
)

// AccountTokenRepository provides data access for the account_tokens table.
// Tokens are stored as SHA-256 hex digests; plaintext is never persisted.
type AccountTokenRepository struct {
	db DBTX
}

// NewAccountTokenRepository creates a new AccountTokenRepository backed by
// the given database connection (pool or transaction).
func NewAccountTokenRepository(db DBTX) *AccountTokenRepository {
	return &AccountTokenRepository{db: db}
}

// GetActorByTokenHash resolves a token digest to the account and role it
// was issued for. Returns nil when the token is unknown, expired or revoked.
func (r *AccountTokenRepository) GetActorByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*types.Actor, error) {
	var accountID, role string
	err := r.db.QueryRow(ctx,
		`SELECT account_id, role FROM account_tokens
		 WHERE token_hash = $1
		   AND revoked_at IS NULL
		   AND (expires_at IS NULL OR expires_at > $2)`,
		tokenHash, now,
	).Scan(&accountID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up account token", err)
	}
	return &types.Actor{ID: accountID, Type: types.ActorTypeAccount, Role: types.Role(role)}, nil
}

// CreateToken stores a new token digest for the account.
func (r *AccountTokenRepository) CreateToken(ctx context.Context, tokenHash, accountID string, role types.Role, expiresAt *time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO account_tokens (token_hash, account_id, role, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		tokenHash, accountID, string(role), expiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create account token", err)
	}
	return nil
}

// RevokeToken stamps revoked_at on the token. Revoking an unknown or
// already-revoked token is not an error.
func (r *AccountTokenRepository) RevokeToken(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE account_tokens SET revoked_at = $2
		 WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to revoke account token", err)
	}
	return nil
}
