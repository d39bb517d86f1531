// Package main is the entrypoint for the fulfillment worker Lambda.
//
// It consumes verified payment events that the webhook receiver published to
// SQS and applies them through the same FulfillmentService the API uses.
// Delivery is at-least-once; Apply and Revoke are idempotent so redelivery is
// harmless.
//
// Failure handling per message:
//   - Malformed body or permanent ledger error (unknown product, missing
//     account): logged and acknowledged. Retrying cannot succeed.
//   - Transient error (database, timeout): reported in BatchItemFailures so
//     SQS redelivers only that message.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"matchpass/internal/billing"
	"matchpass/internal/config"
	"matchpass/internal/db"
	"matchpass/internal/queue"
	"matchpass/internal/telemetry"
	"matchpass/internal/types"
)

// EventHandler applies one decoded payment event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev types.PaymentEvent) error
}

// Handler processes SQS batches of payment events.
type Handler struct {
	events  EventHandler
	metrics types.LedgerMetrics
	logger  *slog.Logger
}

// NewHandler creates a Handler. metrics may be nil.
func NewHandler(events EventHandler, metrics types.LedgerMetrics, logger *slog.Logger) *Handler {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{events: events, metrics: metrics, logger: logger}
}

// Handle is the Lambda entry point. It never returns an error: failures are
// expressed per message so one bad record cannot poison the batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "payment event will be retried",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage returns an error only when the message should be retried.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	ev, err := queue.DecodePaymentEvent(record.Body)
	if err != nil {
		h.logger.ErrorContext(ctx, "dropping malformed payment event",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		h.metrics.RecordCount(ctx, types.MetricPaymentEventDropped, 1)
		return nil
	}

	logger := h.logger.With(
		"message_id", record.MessageId,
		"event_type", string(ev.Type),
		"payment_id", ev.PaymentID,
		"payment_intent_id", ev.PaymentIntentID,
		"source_event_id", ev.SourceEventID,
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			logger = logger.With("queue_lag_ms", time.Since(sentAt).Milliseconds())
		}
	}

	if err := h.events.HandleEvent(ctx, ev); err != nil {
		if types.IsTransient(err) {
			return err
		}
		logger.ErrorContext(ctx, "dropping payment event after permanent failure",
			"error", err.Error(),
			"error_kind", string(types.KindOf(err)),
		)
		h.metrics.RecordCount(ctx, types.MetricPaymentEventDropped, 1)
		return nil
	}

	logger.InfoContext(ctx, "payment event processed")
	return nil
}

// parseMillisTimestamp parses the SQS SentTimestamp attribute.
func parseMillisTimestamp(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler, err := initHandler(context.Background(), logger)
	if err != nil {
		logger.Error("failed to initialize fulfillment worker", "error", err.Error())
		os.Exit(1)
	}

	lambda.Start(handler.Handle)
}

// initHandler runs once per cold start.
func initHandler(ctx context.Context, logger *slog.Logger) (*Handler, error) {
	cfg, err := config.LoadWorkerConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var metrics types.LedgerMetrics = types.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		metrics = telemetry.NewCloudWatchLedgerMetrics(
			cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	fulfillment := billing.NewFulfillmentService(billing.FulfillmentServiceConfig{
		Store:   db.NewFulfillmentStore(pool),
		Catalog: billing.NewStaticCatalog(cfg.Ledger.UnlockDuration),
		Policy:  billing.RenewalPolicy(cfg.Ledger.RenewalPolicy),
		Metrics: metrics,
		Logger:  logger,
	})

	logger.Info("fulfillment worker initialized",
		"environment", cfg.Environment,
		"renewal_policy", cfg.Ledger.RenewalPolicy,
	)
	return NewHandler(fulfillment, metrics, logger), nil
}
