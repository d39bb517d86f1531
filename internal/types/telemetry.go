package types

import "context"

// Metric names. All components MUST use these constants.
const (
	MetricCreditConsumed      = "CreditConsumed"
	MetricFulfillmentAttempt  = "FulfillmentAttempt"
	MetricPromoRedemption     = "PromoRedemption"
	MetricGrantsRevoked       = "GrantsRevoked"
	MetricGrantsExpired       = "GrantsExpired"
	MetricCreditTopUps        = "CreditTopUps"
	MetricAPILatency          = "APILatency"
	MetricPaymentEventDropped = "PaymentEventDropped"

	DimOutcome     = "Outcome"
	DimProductCode = "ProductCode"
	DimTask        = "Task"
)

// Outcome labels shared by logs and metrics.
const (
	OutcomeApplied        = "applied"
	OutcomeDuplicate      = "duplicate"
	OutcomeUnknownProduct = "unknown_product"
	OutcomeRejected       = "rejected"
	OutcomeFailed         = "failed"
	OutcomeSuccess        = "success"
	OutcomeInsufficient   = "insufficient"
)

// LedgerMetrics records domain events. Implementations must be non-blocking
// from the caller's perspective and must never fail the ledger operation.
type LedgerMetrics interface {
	RecordConsumption(ctx context.Context, outcome string)
	RecordFulfillment(ctx context.Context, productCode string, outcome string)
	RecordRedemption(ctx context.Context, outcome string)
	RecordCount(ctx context.Context, metric string, n int)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordConsumption(context.Context, string)         {}
func (NoopMetrics) RecordFulfillment(context.Context, string, string) {}
func (NoopMetrics) RecordRedemption(context.Context, string)          {}
func (NoopMetrics) RecordCount(context.Context, string, int)          {}
