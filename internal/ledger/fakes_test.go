package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"matchpass/internal/types"
)

// --- Fake Clock ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

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

// --- In-memory store ---

// memStore mirrors the SQL semantics: every statement is atomic under mu and
// a transaction keeps an undo log so Rollback restores prior state.
type memStore struct {
	mu           sync.Mutex
	entitlements map[string]*types.Entitlement
	consumptions []types.ConsumptionRecord
	grants       []types.UnlockGrant
	topups       map[string]bool // account|day

	failInsertConsumption error
	failDecrement         error
}

func newMemStore() *memStore {
	return &memStore{
		entitlements: make(map[string]*types.Entitlement),
		topups:       make(map[string]bool),
	}
}

func (s *memStore) seed(accountID string, credits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entitlements[accountID] = &types.Entitlement{AccountID: accountID, CreditsRemaining: credits}
}

func (s *memStore) balance(accountID string) (remaining, used int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entitlements[accountID]
	if !ok {
		return -1, -1
	}
	return e.CreditsRemaining, e.CreditsUsedTotal
}

func (s *memStore) EnsureEntitlement(_ context.Context, accountID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entitlements[accountID]; !ok {
		s.entitlements[accountID] = &types.Entitlement{AccountID: accountID, CreatedAt: now, UpdatedAt: now}
	}
	return nil
}

func (s *memStore) GetEntitlement(_ context.Context, accountID string) (*types.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entitlements[accountID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement not found", nil)
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) BeginTx(_ context.Context) (CreditTx, error) {
	return &memTx{s: s}, nil
}

type memTx struct {
	s    *memStore
	undo []func()
	done bool
}

func (tx *memTx) DecrementCredit(_ context.Context, accountID string, now time.Time) (int, bool, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if tx.s.failDecrement != nil {
		return 0, false, tx.s.failDecrement
	}
	e, ok := tx.s.entitlements[accountID]
	if !ok || e.CreditsRemaining <= 0 {
		return 0, false, nil
	}
	e.CreditsRemaining--
	e.CreditsUsedTotal++
	e.UpdatedAt = now
	tx.undo = append(tx.undo, func() {
		e.CreditsRemaining++
		e.CreditsUsedTotal--
	})
	return e.CreditsRemaining, true, nil
}

func (tx *memTx) InsertConsumption(_ context.Context, rec *types.ConsumptionRecord) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if tx.s.failInsertConsumption != nil {
		return tx.s.failInsertConsumption
	}
	tx.s.consumptions = append(tx.s.consumptions, *rec)
	n := len(tx.s.consumptions)
	tx.undo = append(tx.undo, func() {
		tx.s.consumptions = tx.s.consumptions[:n-1]
	})
	return nil
}

func (tx *memTx) Commit(_ context.Context) error {
	tx.done = true
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	return nil
}

func (s *memStore) CountConsumptions(_ context.Context, accountID string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.consumptions {
		if r.AccountID == accountID && !r.OccurredAt.Before(from) && r.OccurredAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) InsertGrant(_ context.Context, g *types.UnlockGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, *g)
	return nil
}

func (s *memStore) LatestActiveGrant(_ context.Context, accountID, targetID string, now time.Time) (*types.UnlockGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *types.UnlockGrant
	for i := range s.grants {
		g := s.grants[i]
		if g.AccountID != accountID || g.TargetID != targetID || !g.IsActive(now) {
			continue
		}
		if best == nil || g.ExpiresAt.After(best.ExpiresAt) {
			best = &g
		}
	}
	return best, nil
}

func (s *memStore) ListGrants(_ context.Context, accountID string) ([]types.UnlockGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.UnlockGrant
	for _, g := range s.grants {
		if g.AccountID == accountID {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}

func (s *memStore) revoke(paymentID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.grants {
		if p := s.grants[i].PaymentID; p != nil && *p == paymentID {
			s.grants[i].RevokedAt = &at
		}
	}
}

func (s *memStore) TopUpCredits(_ context.Context, day time.Time, floor int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entitlements {
		if e.PremiumActive(now) {
			continue
		}
		key := id + "|" + day.Format(time.DateOnly)
		if s.topups[key] {
			continue
		}
		s.topups[key] = true
		e.CreditsRemaining = max(e.CreditsRemaining, floor)
		n++
	}
	return n, nil
}

func (s *memStore) CountGrantsExpiredBetween(_ context.Context, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.grants {
		if g.RevokedAt == nil && !g.ExpiresAt.Before(from) && g.ExpiresAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// --- Recording metrics ---

type recordingMetrics struct {
	mu          sync.Mutex
	consumption map[string]int
	counts      map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{consumption: map[string]int{}, counts: map[string]int{}}
}

func (m *recordingMetrics) RecordConsumption(_ context.Context, outcome string) {
	m.mu.Lock()
	m.consumption[outcome]++
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordFulfillment(context.Context, string, string) {}
func (m *recordingMetrics) RecordRedemption(context.Context, string)          {}
func (m *recordingMetrics) RecordCount(_ context.Context, metric string, n int) {
	m.mu.Lock()
	m.counts[metric] += n
	m.mu.Unlock()
}

var errStoreDown = errors.New("connection reset by peer")
