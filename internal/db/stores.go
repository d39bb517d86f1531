package db

import (
	"context"
	"fmt"

	"matchpass/internal/billing"
	"matchpass/internal/ledger"
)

// Each Store below composes the repositories a service needs. Reads run on
// the pool; BeginTx rebinds the same repositories to a pgx.Tx.

// CreditStore implements ledger.CreditStore.
type CreditStore struct {
	*EntitlementRepository
	pool Beginner
}

func NewCreditStore(pool Beginner) *CreditStore {
	return &CreditStore{EntitlementRepository: NewEntitlementRepository(pool), pool: pool}
}

func (s *CreditStore) BeginTx(ctx context.Context) (ledger.CreditTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin credit tx: %w", err)
	}
	return &creditTx{
		txn:                   txn{tx: tx},
		EntitlementRepository: NewEntitlementRepository(tx),
		ConsumptionRepository: NewConsumptionRepository(tx),
	}, nil
}

type creditTx struct {
	txn
	*EntitlementRepository
	*ConsumptionRepository
}

// FulfillmentStore implements billing.FulfillmentStore.
type FulfillmentStore struct {
	*FulfillmentRepository
	*GrantRepository
	pool Beginner
}

func NewFulfillmentStore(pool Beginner) *FulfillmentStore {
	return &FulfillmentStore{
		FulfillmentRepository: NewFulfillmentRepository(pool),
		GrantRepository:       NewGrantRepository(pool),
		pool:                  pool,
	}
}

func (s *FulfillmentStore) BeginTx(ctx context.Context) (billing.FulfillmentTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin fulfillment tx: %w", err)
	}
	return &fulfillmentTx{
		txn:                   txn{tx: tx},
		EntitlementRepository: NewEntitlementRepository(tx),
		VenueRepository:       NewVenueRepository(tx),
		FulfillmentRepository: NewFulfillmentRepository(tx),
		GrantRepository:       NewGrantRepository(tx),
	}, nil
}

type fulfillmentTx struct {
	txn
	*EntitlementRepository
	*VenueRepository
	*FulfillmentRepository
	*GrantRepository
}

// PromoStore implements billing.PromoStore.
type PromoStore struct {
	*EntitlementRepository
	*PromoRepository
	pool Beginner
}

func NewPromoStore(pool Beginner) *PromoStore {
	return &PromoStore{
		EntitlementRepository: NewEntitlementRepository(pool),
		PromoRepository:       NewPromoRepository(pool),
		pool:                  pool,
	}
}

func (s *PromoStore) BeginTx(ctx context.Context) (billing.PromoTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin promo tx: %w", err)
	}
	return &promoTx{
		txn:                   txn{tx: tx},
		EntitlementRepository: NewEntitlementRepository(tx),
		PromoRepository:       NewPromoRepository(tx),
	}, nil
}

type promoTx struct {
	txn
	*EntitlementRepository
	*PromoRepository
}

// MaintenanceStore implements ledger.MaintenanceStore.
type MaintenanceStore struct {
	*EntitlementRepository
	*GrantRepository
}

func NewMaintenanceStore(db DBTX) *MaintenanceStore {
	return &MaintenanceStore{
		EntitlementRepository: NewEntitlementRepository(db),
		GrantRepository:       NewGrantRepository(db),
	}
}

var (
	_ ledger.CreditStore       = (*CreditStore)(nil)
	_ ledger.CreditTx          = (*creditTx)(nil)
	_ ledger.UsageCounter      = (*ConsumptionRepository)(nil)
	_ ledger.GrantStore        = (*GrantRepository)(nil)
	_ ledger.MaintenanceStore  = (*MaintenanceStore)(nil)
	_ billing.FulfillmentStore = (*FulfillmentStore)(nil)
	_ billing.FulfillmentTx    = (*fulfillmentTx)(nil)
	_ billing.PromoStore       = (*PromoStore)(nil)
	_ billing.PromoTx          = (*promoTx)(nil)
)
