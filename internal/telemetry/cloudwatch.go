// Package telemetry implements types.LedgerMetrics on CloudWatch (Lambda
// processes) and Prometheus (the API process).
package telemetry

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"matchpass/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchLedgerMetrics emits ledger events as CloudWatch metrics.
//
// Metrics emitted:
//   - CreditConsumed: Dims {Outcome}
//   - FulfillmentAttempt: Dims {ProductCode, Outcome}
//   - PromoRedemption: Dims {Outcome}
//   - GrantsRevoked, GrantsExpired, CreditTopUps: no dims, value = count
//
// Publish failures are logged and swallowed.
type CloudWatchLedgerMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ types.LedgerMetrics = (*CloudWatchLedgerMetrics)(nil)

func NewCloudWatchLedgerMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchLedgerMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchLedgerMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchLedgerMetrics) RecordConsumption(ctx context.Context, outcome string) {
	m.put(ctx, types.MetricCreditConsumed, 1, dim(types.DimOutcome, outcome))
}

func (m *CloudWatchLedgerMetrics) RecordFulfillment(ctx context.Context, productCode string, outcome string) {
	if productCode == "" {
		productCode = "none"
	}
	m.put(ctx, types.MetricFulfillmentAttempt, 1,
		dim(types.DimProductCode, productCode),
		dim(types.DimOutcome, outcome),
	)
}

func (m *CloudWatchLedgerMetrics) RecordRedemption(ctx context.Context, outcome string) {
	m.put(ctx, types.MetricPromoRedemption, 1, dim(types.DimOutcome, outcome))
}

func (m *CloudWatchLedgerMetrics) RecordCount(ctx context.Context, metric string, n int) {
	m.put(ctx, metric, float64(n))
}

func (m *CloudWatchLedgerMetrics) put(ctx context.Context, name string, value float64, dims ...cwtypes.Dimension) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to publish metric",
			"metric", name,
			"error", err,
		)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// Fanout forwards every event to each of its members.
type Fanout []types.LedgerMetrics

var _ types.LedgerMetrics = Fanout(nil)

func (f Fanout) RecordConsumption(ctx context.Context, outcome string) {
	for _, m := range f {
		m.RecordConsumption(ctx, outcome)
	}
}

func (f Fanout) RecordFulfillment(ctx context.Context, productCode string, outcome string) {
	for _, m := range f {
		m.RecordFulfillment(ctx, productCode, outcome)
	}
}

func (f Fanout) RecordRedemption(ctx context.Context, outcome string) {
	for _, m := range f {
		m.RecordRedemption(ctx, outcome)
	}
}

func (f Fanout) RecordCount(ctx context.Context, metric string, n int) {
	for _, m := range f {
		m.RecordCount(ctx, metric, n)
	}
}
