package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"matchpass/internal/types"
)

// FulfillmentRepository provides data access for the fulfillments table,
// the idempotency boundary for payment application. payment_id is the
// primary key, so a second insert for the same payment is a no-op.
type FulfillmentRepository struct {
	db DBTX
}

// NewFulfillmentRepository creates a new FulfillmentRepository backed by the
// given database connection (pool or transaction).
func NewFulfillmentRepository(db DBTX) *FulfillmentRepository {
	return &FulfillmentRepository{db: db}
}

const fulfillmentColumns = `payment_id, account_id, product_code,
	COALESCE(payment_intent_id, ''), applied_at, mutation_summary`

func (r *FulfillmentRepository) getOne(ctx context.Context, where string, arg string) (*types.FulfillmentRecord, error) {
	var rec types.FulfillmentRecord
	err := r.db.QueryRow(ctx,
		`SELECT `+fulfillmentColumns+` FROM fulfillments WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(
		&rec.PaymentID,
		&rec.AccountID,
		&rec.ProductCode,
		&rec.PaymentIntentID,
		&rec.AppliedAt,
		&rec.Mutation,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get fulfillment", err)
	}
	return &rec, nil
}

// GetFulfillment returns the record for paymentID, or nil.
func (r *FulfillmentRepository) GetFulfillment(ctx context.Context, paymentID string) (*types.FulfillmentRecord, error) {
	return r.getOne(ctx, "payment_id = $1", paymentID)
}

// GetFulfillmentByIntent returns the record for a Stripe payment intent, or nil.
func (r *FulfillmentRepository) GetFulfillmentByIntent(ctx context.Context, paymentIntentID string) (*types.FulfillmentRecord, error) {
	return r.getOne(ctx, "payment_intent_id = $1", paymentIntentID)
}

// InsertFulfillment writes the record. inserted=false means a record for
// the payment already exists; the caller must then abandon its mutation.
//
// The mutation summary is stored as JSONB.
func (r *FulfillmentRepository) InsertFulfillment(ctx context.Context, rec *types.FulfillmentRecord) (bool, error) {
	var intent *string
	if rec.PaymentIntentID != "" {
		intent = &rec.PaymentIntentID
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO fulfillments
		 (payment_id, account_id, product_code, payment_intent_id, applied_at, mutation_summary)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (payment_id) DO NOTHING`,
		rec.PaymentID,
		rec.AccountID,
		rec.ProductCode,
		intent,
		rec.AppliedAt,
		rec.Mutation,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert fulfillment", err)
	}
	return tag.RowsAffected() > 0, nil
}
