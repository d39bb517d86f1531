package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"matchpass/internal/ledger"
	"matchpass/internal/types"
)

// FulfillmentStore defines the persistence needed by FulfillmentService.
//
// The apply flow is:
//  1. GetFulfillment: the dedupe gate, checked before any mutation.
//  2. BeginTx.
//  3. Lock the target row (entitlement or venue) FOR UPDATE.
//  4. InsertFulfillment with ON CONFLICT (payment_id) DO NOTHING; a false
//     return means a concurrent delivery won the race.
//  5. Write the mutation (row update or grant insert).
//  6. Commit.
type FulfillmentStore interface {
	// GetFulfillment returns the record for paymentID, or nil if none exists.
	GetFulfillment(ctx context.Context, paymentID string) (*types.FulfillmentRecord, error)

	// GetFulfillmentByIntent returns the record whose payment_intent_id
	// matches, or nil. Used to map charge refunds back to the payment.
	GetFulfillmentByIntent(ctx context.Context, paymentIntentID string) (*types.FulfillmentRecord, error)

	// RevokeGrantsByPayment stamps revoked_at on every unrevoked grant created
	// by paymentID and returns how many rows changed.
	//
	// SQL: UPDATE unlock_grants SET revoked_at = $2
	//      WHERE payment_id = $1 AND revoked_at IS NULL
	RevokeGrantsByPayment(ctx context.Context, paymentID string, at time.Time) (int, error)

	BeginTx(ctx context.Context) (FulfillmentTx, error)
}

// FulfillmentTx is the transactional half of FulfillmentStore.
type FulfillmentTx interface {
	// LockEntitlement lazily creates the account row and locks it.
	//
	// SQL: INSERT ... ON CONFLICT DO NOTHING;
	//      SELECT ... FROM entitlements WHERE account_id = $1 FOR UPDATE
	LockEntitlement(ctx context.Context, accountID string, now time.Time) (*types.Entitlement, error)

	// LockVenue lazily creates the venue row and locks it.
	LockVenue(ctx context.Context, venueID, ownerAccountID string, now time.Time) (*types.VenueEntitlement, error)

	// InsertFulfillment writes the idempotency record. inserted=false means a
	// record for the payment id already exists.
	//
	// SQL: INSERT INTO fulfillments (...) VALUES (...)
	//      ON CONFLICT (payment_id) DO NOTHING
	InsertFulfillment(ctx context.Context, rec *types.FulfillmentRecord) (inserted bool, err error)

	UpdateEntitlement(ctx context.Context, e *types.Entitlement) error
	UpdateVenue(ctx context.Context, v *types.VenueEntitlement) error
	InsertGrant(ctx context.Context, g *types.UnlockGrant) error

	Commit(ctx context.Context) error

	// Rollback is safe to call after Commit (no-op).
	Rollback(ctx context.Context) error
}

// FulfillmentService converts completed payments into entitlement state,
// exactly once per payment id.
type FulfillmentService struct {
	store   FulfillmentStore
	catalog Catalog
	policy  RenewalPolicy
	clock   types.Clock
	metrics types.LedgerMetrics
	logger  *slog.Logger
}

// FulfillmentServiceConfig holds the dependencies for FulfillmentService.
type FulfillmentServiceConfig struct {
	Store   FulfillmentStore
	Catalog Catalog
	Policy  RenewalPolicy // defaults to RenewReplace
	Clock   types.Clock
	Metrics types.LedgerMetrics
	Logger  *slog.Logger
}

func NewFulfillmentService(cfg FulfillmentServiceConfig) *FulfillmentService {
	s := &FulfillmentService{
		store:   cfg.Store,
		catalog: cfg.Catalog,
		policy:  cfg.Policy,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if s.policy == "" {
		s.policy = RenewReplace
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

// Apply fulfills one completed payment. It is idempotent under at-least-once
// delivery: every call after the first for the same payment id returns
// Applied=false and changes nothing. Every attempt is logged with its outcome.
//
// Unknown product codes fail with product_unknown and write no record, so a
// corrected redelivery can still apply.
func (s *FulfillmentService) Apply(ctx context.Context, req types.ApplyRequest) (*types.ApplyResult, error) {
	log := s.logger.With(
		"payment_id", req.PaymentID,
		"account_id", req.AccountID,
		"product_code", req.ProductCode,
	)

	if req.PaymentID == "" || req.AccountID == "" {
		log.WarnContext(ctx, "fulfillment rejected", "outcome", types.OutcomeRejected, "reason", "missing identifiers")
		s.metrics.RecordFulfillment(ctx, req.ProductCode, types.OutcomeRejected)
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "payment_id and account_id are required", nil)
	}

	// Step 1: dedupe gate.
	existing, err := s.store.GetFulfillment(ctx, req.PaymentID)
	if err != nil {
		return nil, s.fail(ctx, log, req, err)
	}
	if existing != nil {
		log.InfoContext(ctx, "fulfillment skipped", "outcome", types.OutcomeDuplicate, "applied_at", existing.AppliedAt)
		s.metrics.RecordFulfillment(ctx, req.ProductCode, types.OutcomeDuplicate)
		return &types.ApplyResult{Applied: false}, nil
	}

	// Step 2: resolve the recipe.
	recipe, ok := s.catalog.Resolve(req.ProductCode)
	if !ok {
		log.WarnContext(ctx, "fulfillment rejected", "outcome", types.OutcomeUnknownProduct)
		s.metrics.RecordFulfillment(ctx, req.ProductCode, types.OutcomeUnknownProduct)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeProductUnknown,
			"unknown product code", nil, map[string]any{"product_code": req.ProductCode})
	}
	if recipe.Scope == types.ScopeUnlock && req.TargetID == "" {
		log.WarnContext(ctx, "fulfillment rejected", "outcome", types.OutcomeRejected, "reason", "unlock without target")
		s.metrics.RecordFulfillment(ctx, recipe.Code, types.OutcomeRejected)
		return nil, types.NewAppError(types.ErrCodeValidationTargetRequired, "target_id is required for unlock products", nil)
	}

	// Steps 3-6: one transaction.
	mutation, applied, err := s.applyInTx(ctx, req, recipe)
	if err != nil {
		return nil, s.fail(ctx, log, req, err)
	}
	if !applied {
		log.InfoContext(ctx, "fulfillment skipped", "outcome", types.OutcomeDuplicate, "reason", "concurrent delivery")
		s.metrics.RecordFulfillment(ctx, recipe.Code, types.OutcomeDuplicate)
		return &types.ApplyResult{Applied: false}, nil
	}

	log.InfoContext(ctx, "fulfillment applied",
		"outcome", types.OutcomeApplied,
		"recipe", recipe.Code,
		"scope", string(mutation.Scope),
		"credits_added", mutation.CreditsAdded,
	)
	s.metrics.RecordFulfillment(ctx, recipe.Code, types.OutcomeApplied)
	return &types.ApplyResult{Applied: true, Mutation: mutation}, nil
}

func (s *FulfillmentService) applyInTx(ctx context.Context, req types.ApplyRequest, recipe Recipe) (*types.Mutation, bool, error) {
	now := s.clock.Now()

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("beginning fulfillment transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	record := &types.FulfillmentRecord{
		PaymentID:       req.PaymentID,
		AccountID:       req.AccountID,
		ProductCode:     recipe.Code,
		PaymentIntentID: req.PaymentIntentID,
		AppliedAt:       now,
	}

	var write func() error

	switch recipe.Scope {
	case types.ScopeAccount:
		ent, err := tx.LockEntitlement(ctx, req.AccountID, now)
		if err != nil {
			return nil, false, err
		}
		record.Mutation = ComputeMutation(recipe, Window{PremiumUntil: ent.PremiumUntil, BoostUntil: ent.BoostUntil}, now, s.policy)
		updated := ApplyToEntitlement(*ent, record.Mutation, now)
		write = func() error { return tx.UpdateEntitlement(ctx, &updated) }

	case types.ScopeVenue:
		venueID := req.VenueID
		if venueID == "" {
			venueID = req.AccountID
		}
		venue, err := tx.LockVenue(ctx, venueID, req.AccountID, now)
		if err != nil {
			return nil, false, err
		}
		record.Mutation = ComputeMutation(recipe, Window{PremiumUntil: venue.PremiumUntil, BoostUntil: venue.BoostUntil}, now, s.policy)
		record.Mutation.VenueID = venueID
		updated := ApplyToVenue(*venue, record.Mutation, now)
		write = func() error { return tx.UpdateVenue(ctx, &updated) }

	case types.ScopeUnlock:
		record.Mutation = ComputeMutation(recipe, Window{}, now, s.policy)
		paymentID := req.PaymentID
		grant := ledger.NewGrant(req.AccountID, req.TargetID, recipe.UnlockFor, &paymentID, now)
		record.Mutation.GrantID = grant.ID
		record.Mutation.TargetID = req.TargetID
		write = func() error { return tx.InsertGrant(ctx, grant) }

	default:
		return nil, false, types.NewAppError(types.ErrCodeInternalUnexpected, "recipe has no scope: "+recipe.Code, nil)
	}

	inserted, err := tx.InsertFulfillment(ctx, record)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		return nil, false, nil
	}

	if err := write(); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to commit fulfillment", err)
	}
	return &record.Mutation, true, nil
}

func (s *FulfillmentService) fail(ctx context.Context, log *slog.Logger, req types.ApplyRequest, err error) error {
	log.ErrorContext(ctx, "fulfillment failed", "outcome", types.OutcomeFailed, "error", err)
	s.metrics.RecordFulfillment(ctx, req.ProductCode, types.OutcomeFailed)
	return err
}

// Revoke reverses a refunded payment. Only unlock grants created by the
// payment are revoked; premium and boost windows are left to expire and any
// refund of those is a manual support action.
func (s *FulfillmentService) Revoke(ctx context.Context, paymentID string) (int, error) {
	if paymentID == "" {
		return 0, types.NewAppError(types.ErrCodeValidationMissingField, "payment_id is required", nil)
	}

	rec, err := s.store.GetFulfillment(ctx, paymentID)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		s.logger.WarnContext(ctx, "refund for unknown payment", "payment_id", paymentID)
		return 0, types.NewAppError(types.ErrCodeNotFoundPayment, "no fulfillment for payment", nil)
	}

	n, err := s.store.RevokeGrantsByPayment(ctx, paymentID, s.clock.Now())
	if err != nil {
		return 0, err
	}

	if rec.Mutation.Scope != types.ScopeUnlock {
		s.logger.WarnContext(ctx, "refund of time-boxed product requires manual review",
			"payment_id", paymentID,
			"account_id", rec.AccountID,
			"product_code", rec.ProductCode,
		)
	}
	s.logger.InfoContext(ctx, "payment refund processed",
		"payment_id", paymentID,
		"account_id", rec.AccountID,
		"grants_revoked", n,
	)
	s.metrics.RecordCount(ctx, types.MetricGrantsRevoked, n)
	return n, nil
}

// RevokeByIntent resolves a payment intent to its fulfilled payment and
// revokes it. Charge refunds carry the intent, not the checkout session id.
func (s *FulfillmentService) RevokeByIntent(ctx context.Context, paymentIntentID string) (int, error) {
	if paymentIntentID == "" {
		return 0, types.NewAppError(types.ErrCodeValidationMissingField, "payment_intent_id is required", nil)
	}
	rec, err := s.store.GetFulfillmentByIntent(ctx, paymentIntentID)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		s.logger.WarnContext(ctx, "refund for unknown payment intent", "payment_intent_id", paymentIntentID)
		return 0, types.NewAppError(types.ErrCodeNotFoundPayment, "no fulfillment for payment intent", nil)
	}
	return s.Revoke(ctx, rec.PaymentID)
}
