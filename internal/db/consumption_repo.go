package db

import (
	"context"
	"time"

	"matchpass/internal/types"
)

// ConsumptionRepository provides data access for the append-only
// consumption_records table.
type ConsumptionRepository struct {
	db DBTX
}

func NewConsumptionRepository(db DBTX) *ConsumptionRepository {
	return &ConsumptionRepository{db: db}
}

// InsertConsumption appends a record and sets rec.ID from the sequence.
func (r *ConsumptionRepository) InsertConsumption(ctx context.Context, rec *types.ConsumptionRecord) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO consumption_records (account_id, target_id, action, occurred_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		rec.AccountID, rec.TargetID, string(rec.Action), rec.OccurredAt,
	).Scan(&rec.ID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert consumption record", err)
	}
	return nil
}

// CountConsumptions counts records with occurred_at in [from, to).
//
// SQL: SELECT COUNT(*) FROM consumption_records
//
//	WHERE account_id = $1 AND occurred_at >= $2 AND occurred_at < $3
func (r *ConsumptionRepository) CountConsumptions(ctx context.Context, accountID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM consumption_records
		 WHERE account_id = $1 AND occurred_at >= $2 AND occurred_at < $3`,
		accountID, from, to,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count consumption records", err)
	}
	return n, nil
}
