package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"matchpass/internal/types"
)

// CreditService is the only path that may decrease credits_remaining.
type CreditService struct {
	store   CreditStore
	clock   types.Clock
	metrics types.LedgerMetrics
	logger  *slog.Logger
}

// CreditServiceConfig holds the dependencies for CreditService.
type CreditServiceConfig struct {
	Store   CreditStore
	Clock   types.Clock         // defaults to RealClock
	Metrics types.LedgerMetrics // defaults to NoopMetrics
	Logger  *slog.Logger
}

func NewCreditService(cfg CreditServiceConfig) *CreditService {
	s := &CreditService{
		store:   cfg.Store,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
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

// Consume spends one credit on behalf of accountID for a discovery action
// against targetID and returns the post-decrement balance.
//
// The decrement is a single conditional update evaluated by the store, so
// concurrent calls can never drive the balance negative or lose a decrement.
// The consumption record is appended in the same transaction. A retry after
// a successful but unacknowledged call re-observes the new balance; it never
// double-decrements a credit it did not spend.
func (s *CreditService) Consume(ctx context.Context, accountID, targetID string, action types.Action) (int, error) {
	if accountID == "" {
		return 0, types.NewAppError(types.ErrCodeValidationMissingField, "account_id is required", nil)
	}
	if targetID == "" {
		return 0, types.NewAppError(types.ErrCodeValidationMissingField, "target_id is required", nil)
	}
	if action != types.ActionPositive && action != types.ActionNegative {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidAction,
			"action must be positive or negative", nil, map[string]any{"action": string(action)})
	}

	now := s.clock.Now()

	if err := s.store.EnsureEntitlement(ctx, accountID, now); err != nil {
		return 0, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning consume transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	remaining, ok, err := tx.DecrementCredit(ctx, accountID, now)
	if err != nil {
		s.metrics.RecordConsumption(ctx, types.OutcomeFailed)
		return 0, err
	}
	if !ok {
		s.metrics.RecordConsumption(ctx, types.OutcomeInsufficient)
		s.logger.InfoContext(ctx, "credit consumption refused",
			"account_id", accountID,
			"target_id", targetID,
		)
		return 0, types.NewAppErrorWithDetails(types.ErrCodeCreditsInsufficient,
			"no credits remaining", nil, map[string]any{"credits_remaining": 0})
	}

	rec := &types.ConsumptionRecord{
		AccountID:  accountID,
		TargetID:   targetID,
		Action:     action,
		OccurredAt: now,
	}
	if err := tx.InsertConsumption(ctx, rec); err != nil {
		s.metrics.RecordConsumption(ctx, types.OutcomeFailed)
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		s.metrics.RecordConsumption(ctx, types.OutcomeFailed)
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to commit consumption", err)
	}

	s.metrics.RecordConsumption(ctx, types.OutcomeSuccess)
	s.logger.DebugContext(ctx, "credit consumed",
		"account_id", accountID,
		"target_id", targetID,
		"action", string(action),
		"credits_remaining", remaining,
	)
	return remaining, nil
}

// Entitlement returns the account's ledger row, creating the zero-balance
// row on first touch so a never-seen account is a valid state, not an error.
func (s *CreditService) Entitlement(ctx context.Context, accountID string) (*types.Entitlement, error) {
	if accountID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "account_id is required", nil)
	}
	if err := s.store.EnsureEntitlement(ctx, accountID, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.store.GetEntitlement(ctx, accountID)
}
