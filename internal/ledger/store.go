// Package ledger implements the account-side of the entitlement ledger:
// credit consumption, the daily usage guard, unlock grants, and the
// scheduled maintenance that keeps credits and the daily cap in step.
//
// All shared state lives in the durable store. Services hold no mutable state
// of their own and are safe for concurrent use.
package ledger

import (
	"context"
	"time"

	"matchpass/internal/types"
)

// CreditStore defines the persistence needed by CreditService.
//
// The consumption flow is:
//  1. EnsureEntitlement lazily creates the row (outside any transaction).
//  2. BeginTx starts a transaction.
//  3. DecrementCredit performs the atomic conditional decrement.
//  4. InsertConsumption appends the audit record.
//  5. Commit.
type CreditStore interface {
	// EnsureEntitlement inserts a zero-balance row if none exists.
	//
	// SQL: INSERT INTO entitlements (account_id, created_at, updated_at)
	//      VALUES ($1, $2, $2) ON CONFLICT (account_id) DO NOTHING
	EnsureEntitlement(ctx context.Context, accountID string, now time.Time) error

	// GetEntitlement returns the row or a not_found AppError.
	GetEntitlement(ctx context.Context, accountID string) (*types.Entitlement, error)

	BeginTx(ctx context.Context) (CreditTx, error)
}

// CreditTx is the transactional half of CreditStore.
type CreditTx interface {
	// DecrementCredit decrements by one only if the balance is positive,
	// evaluated by the store in a single statement. ok=false means the
	// balance was already zero and nothing changed.
	//
	// SQL: UPDATE entitlements
	//      SET credits_remaining = credits_remaining - 1,
	//          credits_used_total = credits_used_total + 1, updated_at = $2
	//      WHERE account_id = $1 AND credits_remaining > 0
	//      RETURNING credits_remaining
	DecrementCredit(ctx context.Context, accountID string, now time.Time) (remaining int, ok bool, err error)

	// InsertConsumption appends a consumption record.
	InsertConsumption(ctx context.Context, rec *types.ConsumptionRecord) error

	Commit(ctx context.Context) error

	// Rollback is safe to call after Commit (no-op).
	Rollback(ctx context.Context) error
}

// UsageCounter counts consumption records for the Abuse Guard.
type UsageCounter interface {
	// CountConsumptions counts records with occurred_at in [from, to).
	CountConsumptions(ctx context.Context, accountID string, from, to time.Time) (int, error)
}

// GrantStore persists unlock grants. Rows are only ever inserted or marked
// revoked; nothing here deletes.
type GrantStore interface {
	InsertGrant(ctx context.Context, g *types.UnlockGrant) error

	// LatestActiveGrant returns the active grant with the furthest expiry for
	// (account, target), or nil when none is active at now.
	LatestActiveGrant(ctx context.Context, accountID, targetID string, now time.Time) (*types.UnlockGrant, error)

	// ListGrants returns every grant for the account, newest first.
	ListGrants(ctx context.Context, accountID string) ([]types.UnlockGrant, error)
}

// MaintenanceStore backs the scheduled ledger tasks.
type MaintenanceStore interface {
	// TopUpCredits raises credits_remaining to floor for every account
	// without active premium that has not yet been topped up on day.
	// Returns the number of accounts topped up.
	//
	// SQL: WITH due AS (
	//        INSERT INTO credit_topups (account_id, day, granted_at)
	//        SELECT account_id, $1, $3 FROM entitlements
	//        WHERE premium_until IS NULL OR premium_until <= $3
	//        ON CONFLICT (account_id, day) DO NOTHING
	//        RETURNING account_id)
	//      UPDATE entitlements e SET credits_remaining = GREATEST(e.credits_remaining, $2), updated_at = $3
	//      FROM due WHERE e.account_id = due.account_id
	TopUpCredits(ctx context.Context, day time.Time, floor int, now time.Time) (int, error)

	// CountGrantsExpiredBetween counts unrevoked grants whose expires_at
	// falls in [from, to).
	CountGrantsExpiredBetween(ctx context.Context, from, to time.Time) (int, error)
}
