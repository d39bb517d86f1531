package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchpass/internal/types"
)

var testNow = time.Date(2026, 5, 14, 9, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestComputeMutation(t *testing.T) {
	catalog := NewStaticCatalog(24 * time.Hour)
	future := testNow.Add(5 * day)
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name         string
		code         string
		current      Window
		policy       RenewalPolicy
		wantPremium  *time.Time
		wantBoost    *time.Time
		wantCredits  int
		wantVisScore *int
	}{
		{
			name:        "unlimited access adds credits and 12h premium",
			code:        ProductUnlimitedAccess12h,
			policy:      RenewReplace,
			wantPremium: ptr(testNow.Add(12 * time.Hour)),
			wantCredits: 10,
		},
		{
			name:         "replace discards unused premium",
			code:         ProductProviderPremium1Month,
			current:      Window{PremiumUntil: &future},
			policy:       RenewReplace,
			wantPremium:  ptr(testNow.Add(30 * day)),
			wantVisScore: ptr(3),
		},
		{
			name:         "extend stacks on unexpired premium",
			code:         ProductProviderPremium1Month,
			current:      Window{PremiumUntil: &future},
			policy:       RenewExtend,
			wantPremium:  ptr(future.Add(30 * day)),
			wantVisScore: ptr(3),
		},
		{
			name:         "extend starts from now when premium lapsed",
			code:         ProductProviderPremium3Month,
			current:      Window{PremiumUntil: &past},
			policy:       RenewExtend,
			wantPremium:  ptr(testNow.Add(90 * day)),
			wantVisScore: ptr(3),
		},
		{
			name:         "boost leaves premium alone",
			code:         ProductBoostVisibility6h,
			current:      Window{PremiumUntil: &future},
			policy:       RenewReplace,
			wantBoost:    ptr(testNow.Add(6 * time.Hour)),
			wantVisScore: ptr(5),
		},
		{
			name:         "venue toplist",
			code:         ProductVenueToplist7d,
			policy:       RenewReplace,
			wantBoost:    ptr(testNow.Add(7 * day)),
			wantVisScore: ptr(10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := catalog.Resolve(tt.code)
			require.True(t, ok)

			m := ComputeMutation(r, tt.current, testNow, tt.policy)
			assert.Equal(t, r.Scope, m.Scope)
			assert.Equal(t, tt.wantPremium, m.PremiumUntil)
			assert.Equal(t, tt.wantBoost, m.BoostUntil)
			assert.Equal(t, tt.wantCredits, m.CreditsAdded)
			assert.Equal(t, tt.wantVisScore, m.VisibilityScore)
			assert.Nil(t, m.GrantExpiresAt)
		})
	}
}

func TestComputeMutation_UnlockCarriesGrantExpiry(t *testing.T) {
	r, _ := NewStaticCatalog(24 * time.Hour).Resolve(ProductUnlockSingleProfile)
	m := ComputeMutation(r, Window{}, testNow, RenewReplace)

	require.NotNil(t, m.GrantExpiresAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *m.GrantExpiresAt)
	assert.Nil(t, m.PremiumUntil)
	assert.Zero(t, m.CreditsAdded)
}

func TestApplyToEntitlement(t *testing.T) {
	e := types.Entitlement{AccountID: "acct_1", CreditsRemaining: 3, VisibilityScore: 1}
	m := types.Mutation{
		Scope:           types.ScopeAccount,
		PremiumUntil:    ptr(testNow.Add(time.Hour)),
		CreditsAdded:    10,
		VisibilityScore: ptr(5),
	}

	got := ApplyToEntitlement(e, m, testNow)
	assert.Equal(t, 13, got.CreditsRemaining)
	assert.Equal(t, 5, got.VisibilityScore)
	assert.Equal(t, testNow.Add(time.Hour), *got.PremiumUntil)
	assert.Equal(t, testNow, got.UpdatedAt)
	assert.Equal(t, 3, e.CreditsRemaining, "input is not modified")
}

func TestApplyToVenue_KeepsUnsetFields(t *testing.T) {
	boost := testNow.Add(day)
	v := types.VenueEntitlement{VenueID: "v1", BoostUntil: &boost, VisibilityScore: 10}

	got := ApplyToVenue(v, types.Mutation{Scope: types.ScopeVenue, PremiumUntil: ptr(testNow.Add(30 * day))}, testNow)
	assert.Equal(t, &boost, got.BoostUntil)
	assert.Equal(t, 10, got.VisibilityScore)
	assert.Equal(t, testNow.Add(30*day), *got.PremiumUntil)
}
