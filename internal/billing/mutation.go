package billing

import (
	"time"

	"matchpass/internal/types"
)

// RenewalPolicy decides what a repurchase does to an expiry that is still in
// the future.
type RenewalPolicy string

const (
	// RenewReplace sets expiry to now+duration, discarding unused time.
	RenewReplace RenewalPolicy = "replace"
	// RenewExtend adds duration to max(now, current expiry).
	RenewExtend RenewalPolicy = "extend"
)

// Window is the time-boxed state a recipe is applied against.
type Window struct {
	PremiumUntil *time.Time
	BoostUntil   *time.Time
}

// ComputeMutation is the pure transition function: given a recipe, the row's
// current window and now, it returns the new field values. Credits are
// additive; expiry fields are replaced (or extended under RenewExtend).
// Unlock recipes only carry the grant expiry; the caller inserts the grant.
func ComputeMutation(r Recipe, current Window, now time.Time, policy RenewalPolicy) types.Mutation {
	m := types.Mutation{Scope: r.Scope, CreditsAdded: r.Credits}

	if r.PremiumFor > 0 {
		t := renew(current.PremiumUntil, r.PremiumFor, now, policy)
		m.PremiumUntil = &t
	}
	if r.BoostFor > 0 {
		t := renew(current.BoostUntil, r.BoostFor, now, policy)
		m.BoostUntil = &t
	}
	if r.Visibility > 0 {
		v := r.Visibility
		m.VisibilityScore = &v
	}
	if r.UnlockFor > 0 {
		t := now.Add(r.UnlockFor)
		m.GrantExpiresAt = &t
	}
	return m
}

func renew(current *time.Time, d time.Duration, now time.Time, policy RenewalPolicy) time.Time {
	if policy == RenewExtend && current != nil && current.After(now) {
		return current.Add(d)
	}
	return now.Add(d)
}

// ApplyToEntitlement returns a copy of e with m applied.
func ApplyToEntitlement(e types.Entitlement, m types.Mutation, now time.Time) types.Entitlement {
	if m.PremiumUntil != nil {
		e.PremiumUntil = m.PremiumUntil
	}
	if m.BoostUntil != nil {
		e.BoostUntil = m.BoostUntil
	}
	if m.VisibilityScore != nil {
		e.VisibilityScore = *m.VisibilityScore
	}
	e.CreditsRemaining += m.CreditsAdded
	e.UpdatedAt = now
	return e
}

// ApplyToVenue returns a copy of v with m applied. Venues carry no credits.
func ApplyToVenue(v types.VenueEntitlement, m types.Mutation, now time.Time) types.VenueEntitlement {
	if m.PremiumUntil != nil {
		v.PremiumUntil = m.PremiumUntil
	}
	if m.BoostUntil != nil {
		v.BoostUntil = m.BoostUntil
	}
	if m.VisibilityScore != nil {
		v.VisibilityScore = *m.VisibilityScore
	}
	v.UpdatedAt = now
	return v
}
