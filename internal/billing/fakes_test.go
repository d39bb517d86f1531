package billing

import (
	"context"
	"sync"
	"time"

	"matchpass/internal/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memLedger is an in-memory stand-in for the Postgres store. Transactions
// take a per-store lock for their lifetime, which is what FOR UPDATE gives
// the real adapter for a single account, and buffer their writes until Commit.
type memLedger struct {
	txLock sync.Mutex // held by an open transaction
	mu     sync.Mutex // guards the maps below

	entitlements map[string]types.Entitlement
	venues       map[string]types.VenueEntitlement
	fulfillments map[string]types.FulfillmentRecord
	grants       []types.UnlockGrant
	redemptions  map[string]string
	discounts    map[string]types.DiscountCode

	failUpdate error
}

func newMemLedger() *memLedger {
	return &memLedger{
		entitlements: map[string]types.Entitlement{},
		venues:       map[string]types.VenueEntitlement{},
		fulfillments: map[string]types.FulfillmentRecord{},
		redemptions:  map[string]string{},
		discounts:    map[string]types.DiscountCode{},
	}
}

func (m *memLedger) entitlement(id string) types.Entitlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entitlements[id]
}

func (m *memLedger) fulfillmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fulfillments)
}

// --- FulfillmentStore / PromoStore (non-transactional reads) ---

func (m *memLedger) GetFulfillment(_ context.Context, paymentID string) (*types.FulfillmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.fulfillments[paymentID]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *memLedger) GetFulfillmentByIntent(_ context.Context, intentID string) (*types.FulfillmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.fulfillments {
		if rec.PaymentIntentID == intentID {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memLedger) RevokeGrantsByPayment(_ context.Context, paymentID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.grants {
		g := &m.grants[i]
		if g.PaymentID != nil && *g.PaymentID == paymentID && g.RevokedAt == nil {
			g.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memLedger) EnsureEntitlement(_ context.Context, accountID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entitlements[accountID]; !ok {
		m.entitlements[accountID] = types.Entitlement{AccountID: accountID, CreatedAt: now, UpdatedAt: now}
	}
	return nil
}

func (m *memLedger) GetEntitlement(_ context.Context, accountID string) (*types.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[accountID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement not found", nil)
	}
	return &e, nil
}

func (m *memLedger) GetDiscountCode(_ context.Context, code string) (*types.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dc, ok := m.discounts[code]; ok {
		return &dc, nil
	}
	return nil, nil
}

// BeginTx satisfies FulfillmentStore.
func (m *memLedger) BeginTx(_ context.Context) (FulfillmentTx, error) {
	m.txLock.Lock()
	return &memTx{m: m}, nil
}

// promoStore adapts memLedger to PromoStore, whose BeginTx returns PromoTx.
type promoStore struct{ *memLedger }

func (p promoStore) BeginTx(_ context.Context) (PromoTx, error) {
	p.txLock.Lock()
	return &memTx{m: p.memLedger}, nil
}

// --- Transaction ---

type memTx struct {
	m       *memLedger
	pending []func()
	done    bool
}

func (tx *memTx) LockEntitlement(ctx context.Context, accountID string, now time.Time) (*types.Entitlement, error) {
	_ = tx.m.EnsureEntitlement(ctx, accountID, now)
	e := tx.m.entitlement(accountID)
	return &e, nil
}

func (tx *memTx) LockVenue(_ context.Context, venueID, owner string, now time.Time) (*types.VenueEntitlement, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	v, ok := tx.m.venues[venueID]
	if !ok {
		v = types.VenueEntitlement{VenueID: venueID, OwnerAccountID: owner, UpdatedAt: now}
		tx.m.venues[venueID] = v
	}
	return &v, nil
}

func (tx *memTx) InsertFulfillment(_ context.Context, rec *types.FulfillmentRecord) (bool, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if _, ok := tx.m.fulfillments[rec.PaymentID]; ok {
		return false, nil
	}
	r := *rec
	tx.pending = append(tx.pending, func() { tx.m.fulfillments[r.PaymentID] = r })
	return true, nil
}

func (tx *memTx) UpdateEntitlement(_ context.Context, e *types.Entitlement) error {
	if tx.m.failUpdate != nil {
		return tx.m.failUpdate
	}
	cp := *e
	tx.pending = append(tx.pending, func() { tx.m.entitlements[cp.AccountID] = cp })
	return nil
}

func (tx *memTx) UpdateVenue(_ context.Context, v *types.VenueEntitlement) error {
	cp := *v
	tx.pending = append(tx.pending, func() { tx.m.venues[cp.VenueID] = cp })
	return nil
}

func (tx *memTx) InsertGrant(_ context.Context, g *types.UnlockGrant) error {
	cp := *g
	tx.pending = append(tx.pending, func() { tx.m.grants = append(tx.m.grants, cp) })
	return nil
}

func (tx *memTx) InsertRedemption(_ context.Context, accountID, code string, _ time.Time) (bool, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if _, ok := tx.m.redemptions[accountID]; ok {
		return false, nil
	}
	tx.pending = append(tx.pending, func() { tx.m.redemptions[accountID] = code })
	return true, nil
}

func (tx *memTx) MarkPromoRedeemed(_ context.Context, accountID string, premiumUntil time.Time, visibility int, now time.Time) (bool, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	e, ok := tx.m.entitlements[accountID]
	if !ok || e.PromoRedeemed {
		return false, nil
	}
	tx.pending = append(tx.pending, func() {
		e := tx.m.entitlements[accountID]
		e.PremiumUntil = &premiumUntil
		e.VisibilityScore = visibility
		e.PromoRedeemed = true
		e.UpdatedAt = now
		tx.m.entitlements[accountID] = e
	})
	return true, nil
}

func (tx *memTx) Commit(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.m.mu.Lock()
	for _, fn := range tx.pending {
		fn()
	}
	tx.m.mu.Unlock()
	tx.done = true
	tx.m.txLock.Unlock()
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.m.txLock.Unlock()
	return nil
}

// --- Metrics ---

type countingMetrics struct {
	mu          sync.Mutex
	fulfillment map[string]int
	redemption  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{fulfillment: map[string]int{}, redemption: map[string]int{}}
}

func (c *countingMetrics) RecordConsumption(context.Context, string) {}
func (c *countingMetrics) RecordFulfillment(_ context.Context, _ string, outcome string) {
	c.mu.Lock()
	c.fulfillment[outcome]++
	c.mu.Unlock()
}
func (c *countingMetrics) RecordRedemption(_ context.Context, outcome string) {
	c.mu.Lock()
	c.redemption[outcome]++
	c.mu.Unlock()
}
func (c *countingMetrics) RecordCount(context.Context, string, int) {}
