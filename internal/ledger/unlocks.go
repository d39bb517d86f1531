package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"matchpass/internal/types"
)

// UnlockStatus is the read model for a single (account, target) pair.
type UnlockStatus struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UnlockService manages time-boxed per-target access grants. Activity is a
// pure function of the clock; nothing ever needs to run to expire a grant.
type UnlockService struct {
	store  GrantStore
	clock  types.Clock
	logger *slog.Logger
}

func NewUnlockService(store GrantStore, clock types.Clock, logger *slog.Logger) *UnlockService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnlockService{store: store, clock: clock, logger: logger}
}

// NewGrant builds a grant row starting at now. It never looks at existing
// grants: repeated purchases stack as independent rows.
func NewGrant(accountID, targetID string, duration time.Duration, paymentID *string, now time.Time) *types.UnlockGrant {
	return &types.UnlockGrant{
		ID:        uuid.New().String(),
		AccountID: accountID,
		TargetID:  targetID,
		GrantedAt: now,
		ExpiresAt: now.Add(duration),
		PaymentID: paymentID,
	}
}

// Grant inserts a new grant expiring at now+duration.
func (s *UnlockService) Grant(ctx context.Context, accountID, targetID string, duration time.Duration, paymentID *string) (*types.UnlockGrant, error) {
	if accountID == "" || targetID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "account_id and target_id are required", nil)
	}
	if duration <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidBody, "grant duration must be positive", nil)
	}

	g := NewGrant(accountID, targetID, duration, paymentID, s.clock.Now())
	if err := s.store.InsertGrant(ctx, g); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "unlock granted",
		"account_id", accountID,
		"target_id", targetID,
		"grant_id", g.ID,
		"expires_at", g.ExpiresAt,
	)
	return g, nil
}

// IsActive reports whether any grant for (account, target) is active now.
func (s *UnlockService) IsActive(ctx context.Context, accountID, targetID string) (bool, error) {
	st, err := s.Status(ctx, accountID, targetID)
	if err != nil {
		return false, err
	}
	return st.Active, nil
}

// Status returns activity plus the expiry of the latest active grant.
func (s *UnlockService) Status(ctx context.Context, accountID, targetID string) (UnlockStatus, error) {
	if accountID == "" || targetID == "" {
		return UnlockStatus{}, types.NewAppError(types.ErrCodeValidationMissingField, "account_id and target_id are required", nil)
	}

	now := s.clock.Now()
	g, err := s.store.LatestActiveGrant(ctx, accountID, targetID, now)
	if err != nil {
		return UnlockStatus{}, err
	}
	if g == nil || !g.IsActive(now) {
		return UnlockStatus{}, nil
	}
	expires := g.ExpiresAt
	return UnlockStatus{Active: true, ExpiresAt: &expires}, nil
}

// List partitions the account's grants into active and expired at read time.
// Revoked grants are reported as expired.
func (s *UnlockService) List(ctx context.Context, accountID string) (types.UnlockList, error) {
	if accountID == "" {
		return types.UnlockList{}, types.NewAppError(types.ErrCodeValidationMissingField, "account_id is required", nil)
	}

	grants, err := s.store.ListGrants(ctx, accountID)
	if err != nil {
		return types.UnlockList{}, err
	}

	return PartitionGrants(grants, s.clock.Now()), nil
}

// PartitionGrants splits grants by IsActive at now, preserving order.
func PartitionGrants(grants []types.UnlockGrant, now time.Time) types.UnlockList {
	out := types.UnlockList{
		Active:  make([]types.UnlockGrant, 0),
		Expired: make([]types.UnlockGrant, 0),
	}
	for _, g := range grants {
		if g.IsActive(now) {
			out.Active = append(out.Active, g)
		} else {
			out.Expired = append(out.Expired, g)
		}
	}
	return out
}
