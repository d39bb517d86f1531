// Package main is the entrypoint for the ledger maintenance Lambda.
//
// EventBridge rules invoke it with a MaintenancePayload:
//
//	{"task": "topup_daily_credits"}   hourly; each account is topped up once per UTC day
//	{"task": "report_grant_expiry"}   daily; publishes the GrantsExpired metric
//
// Handler flow:
//  1. Acquire a job lock keyed by task and hour.
//  2. Record the run in job_runs.
//  3. Dispatch to ledger.Maintenance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/google/uuid"

	"matchpass/internal/config"
	"matchpass/internal/db"
	"matchpass/internal/ledger"
	"matchpass/internal/scheduler"
	"matchpass/internal/telemetry"
	"matchpass/internal/types"
)

// Handler adapts scheduler.Runner to the Lambda signature.
type Handler struct {
	Runner *scheduler.Runner
}

// Handle runs one payload. A held lock returns a skipped Result, not an error,
// so EventBridge does not retry.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (scheduler.Result, error) {
	return h.Runner.Run(ctx, payload)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("ledger maintenance initializing (cold start)")

	runner, err := newRunner(context.Background(), logger)
	if err != nil {
		logger.Error("failed to initialize ledger maintenance", "error", err)
		os.Exit(1)
	}

	h := &Handler{Runner: runner}
	lambda.Start(h.Handle)
}

// newRunner wires the runner once per cold start. The worker id is unique per
// execution environment so job_locks shows which instance ran a window.
func newRunner(ctx context.Context, logger *slog.Logger) (*scheduler.Runner, error) {
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
			pool.Close()
			return nil, err
		}
		metrics = telemetry.NewCloudWatchLedgerMetrics(
			cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	clock := types.RealClock{}
	return &scheduler.Runner{
		Tasks:      ledger.NewMaintenance(db.NewMaintenanceStore(pool), cfg.Ledger.DailyFreeCap, clock, metrics, logger),
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobRunRepository(pool),
		WorkerID:   "maintenance-" + uuid.NewString(),
		Clock:      clock,
		Logger:     logger,
	}, nil
}
