package types

import (
	"strings"
	"time"
)

// Action is the discovery signal recorded when a credit is consumed.
type Action string

const (
	ActionPositive Action = "positive"
	ActionNegative Action = "negative"
)

// ParseAction normalizes a client-supplied action. The older client names
// "like" and "pass" are accepted as aliases.
func ParseAction(s string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "like":
		return ActionPositive, true
	case "negative", "pass":
		return ActionNegative, true
	default:
		return "", false
	}
}

// Entitlement is the per-account ledger row. Rows are created lazily with
// zero credits on first touch and are never deleted.
type Entitlement struct {
	AccountID        string     `json:"account_id"`
	CreditsRemaining int        `json:"credits_remaining"`
	CreditsUsedTotal int        `json:"credits_used_total"`
	PremiumUntil     *time.Time `json:"premium_until,omitempty"`
	BoostUntil       *time.Time `json:"boost_until,omitempty"`
	PromoRedeemed    bool       `json:"promo_redeemed"`
	VisibilityScore  int        `json:"visibility_score"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PremiumActive reports whether premium access is in force at now.
func (e *Entitlement) PremiumActive(now time.Time) bool {
	return activeAt(e.PremiumUntil, now)
}

// BoostActive reports whether the visibility boost is in force at now.
func (e *Entitlement) BoostActive(now time.Time) bool {
	return activeAt(e.BoostUntil, now)
}

// VenueEntitlement is the venue-scoped counterpart of Entitlement. It carries
// only time-boxed fields; venues do not consume credits.
type VenueEntitlement struct {
	VenueID         string     `json:"venue_id"`
	OwnerAccountID  string     `json:"owner_account_id"`
	PremiumUntil    *time.Time `json:"premium_until,omitempty"`
	BoostUntil      *time.Time `json:"boost_until,omitempty"`
	VisibilityScore int        `json:"visibility_score"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ConsumptionRecord is the append-only audit of a single consumed credit.
type ConsumptionRecord struct {
	ID         int64     `json:"id"`
	AccountID  string    `json:"account_id"`
	TargetID   string    `json:"target_id"`
	Action     Action    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}

// UnlockGrant is a time-boxed right for one account to view one target's
// contact details. Grants are never merged or extended.
type UnlockGrant struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	TargetID  string     `json:"target_id"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	PaymentID *string    `json:"payment_id,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsActive is a pure function of the clock: now < expires_at and not revoked.
func (g *UnlockGrant) IsActive(now time.Time) bool {
	return g.RevokedAt == nil && now.Before(g.ExpiresAt)
}

// UnlockList partitions an account's grants by activity at read time.
type UnlockList struct {
	Active  []UnlockGrant `json:"active"`
	Expired []UnlockGrant `json:"expired"`
}

// MutationScope names the row a fulfillment mutation lands on.
type MutationScope string

const (
	ScopeAccount MutationScope = "account"
	ScopeVenue   MutationScope = "venue"
	ScopeUnlock  MutationScope = "unlock"
)

// Mutation is the resolved effect of one fulfilled payment. It is stored on
// the fulfillment record as the mutation summary.
type Mutation struct {
	Scope           MutationScope `json:"scope"`
	PremiumUntil    *time.Time    `json:"premium_until,omitempty"`
	BoostUntil      *time.Time    `json:"boost_until,omitempty"`
	CreditsAdded    int           `json:"credits_added,omitempty"`
	VisibilityScore *int          `json:"visibility_score,omitempty"`
	VenueID         string        `json:"venue_id,omitempty"`
	GrantID         string        `json:"grant_id,omitempty"`
	TargetID        string        `json:"target_id,omitempty"`
	GrantExpiresAt  *time.Time    `json:"grant_expires_at,omitempty"`
}

// FulfillmentRecord is the idempotency boundary for payment application.
// Its existence for a payment id is the sole gate against re-application.
type FulfillmentRecord struct {
	PaymentID       string    `json:"payment_id"`
	AccountID       string    `json:"account_id"`
	ProductCode     string    `json:"product_code"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	AppliedAt       time.Time `json:"applied_at"`
	Mutation        Mutation  `json:"mutation_summary"`
}

// ApplyResult is returned by payment application. Applied=false means the
// payment id had already been fulfilled; it is a success, not an error.
type ApplyResult struct {
	Applied  bool      `json:"applied"`
	Mutation *Mutation `json:"mutation,omitempty"`
}

// DailyUsage is the advisory pre-flight view of today's consumption.
type DailyUsage struct {
	UsedToday int `json:"used_today"`
	Cap       int `json:"cap"`
	Remaining int `json:"remaining"`
}

// DiscountCode is a promotional code stored outside the built-in set.
type DiscountCode struct {
	Code          string     `json:"code"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue int        `json:"discount_value"`
	PlanType      string     `json:"plan_type"`
	Active        bool       `json:"active"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// PromoResult is returned by a successful redemption.
type PromoResult struct {
	PlanApplied  string    `json:"plan_applied"`
	PremiumUntil time.Time `json:"premium_until"`
}

func activeAt(until *time.Time, now time.Time) bool {
	return until != nil && now.Before(*until)
}
