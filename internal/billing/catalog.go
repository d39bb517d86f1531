// Package billing turns completed payments and promotional codes into
// entitlement state. It owns the closed product catalog, the pure mutation
// function, and the idempotent fulfillment protocol.
package billing

import (
	"sort"
	"strings"
	"time"

	"matchpass/internal/types"
)

// Product codes. The catalog is closed: anything not listed here (other than
// the legacy aliases and the empty legacy code) is an UnknownProduct.
const (
	ProductUnlimitedAccess12h    = "unlimited-access-12h"
	ProductUnlockSingleProfile   = "unlock-single-profile"
	ProductProviderPremium1Month = "provider-premium-1month"
	ProductProviderPremium3Month = "provider-premium-3month"
	ProductBoostVisibility6h     = "boost-visibility-6h"
	ProductBoostSearch24h        = "boost-search-24h"
	ProductVenuePremium1Month    = "venue-premium-1month"
	ProductVenueToplist7d        = "venue-toplist-7d"

	// ProductLegacyAccess is the recipe applied to sessions created before
	// product metadata existed (empty product code).
	ProductLegacyAccess = "legacy-access-12h"
)

const day = 24 * time.Hour

// Recipe is one row of the mutation table. Durations of zero leave the
// corresponding field untouched.
type Recipe struct {
	Code       string
	Scope      types.MutationScope
	PremiumFor time.Duration
	BoostFor   time.Duration
	Credits    int
	Visibility int // 0 means leave visibility_score unchanged
	UnlockFor  time.Duration
}

// Catalog resolves product codes to recipes.
type Catalog interface {
	// Resolve returns the recipe for code. Legacy aliases resolve to their
	// current product; the empty code resolves to the legacy fallback.
	Resolve(code string) (Recipe, bool)

	// Codes lists the canonical product codes, sorted.
	Codes() []string
}

// legacyAliases maps product names used by older clients and by checkout
// sessions still in flight to their current code.
var legacyAliases = map[string]string{
	"12h-unlimited":        ProductUnlimitedAccess12h,
	"unlock-profile":       ProductUnlockSingleProfile,
	"therapist-premium-1m": ProductProviderPremium1Month,
	"therapist-premium-3m": ProductProviderPremium3Month,
	"boost-swipe-6h":       ProductBoostVisibility6h,
	"salong-premium-1m":    ProductVenuePremium1Month,
	"salong-toplist-7d":    ProductVenueToplist7d,
}

type staticCatalog struct {
	recipes map[string]Recipe
}

// NewStaticCatalog returns the production catalog. unlockFor is the lifetime
// of a single-profile unlock grant (24h in production).
func NewStaticCatalog(unlockFor time.Duration) Catalog {
	recipes := []Recipe{
		{Code: ProductUnlimitedAccess12h, Scope: types.ScopeAccount, PremiumFor: 12 * time.Hour, Credits: 10},
		{Code: ProductUnlockSingleProfile, Scope: types.ScopeUnlock, UnlockFor: unlockFor},
		{Code: ProductProviderPremium1Month, Scope: types.ScopeAccount, PremiumFor: 30 * day, Visibility: 3},
		{Code: ProductProviderPremium3Month, Scope: types.ScopeAccount, PremiumFor: 90 * day, Visibility: 3},
		{Code: ProductBoostVisibility6h, Scope: types.ScopeAccount, BoostFor: 6 * time.Hour, Visibility: 5},
		{Code: ProductBoostSearch24h, Scope: types.ScopeAccount, BoostFor: day, Visibility: 10},
		{Code: ProductVenuePremium1Month, Scope: types.ScopeVenue, PremiumFor: 30 * day, Visibility: 3},
		{Code: ProductVenueToplist7d, Scope: types.ScopeVenue, BoostFor: 7 * day, Visibility: 10},
		{Code: ProductLegacyAccess, Scope: types.ScopeAccount, PremiumFor: 12 * time.Hour, Credits: 10},
	}

	m := make(map[string]Recipe, len(recipes))
	for _, r := range recipes {
		m[r.Code] = r
	}
	return &staticCatalog{recipes: m}
}

func (c *staticCatalog) Resolve(code string) (Recipe, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = ProductLegacyAccess
	}
	if alias, ok := legacyAliases[code]; ok {
		code = alias
	}
	r, ok := c.recipes[code]
	return r, ok
}

func (c *staticCatalog) Codes() []string {
	out := make([]string, 0, len(c.recipes))
	for code := range c.recipes {
		if code != ProductLegacyAccess {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}
