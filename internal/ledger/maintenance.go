package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"matchpass/internal/types"
)

// Maintenance runs the scheduled ledger tasks. Neither task is required for
// the correctness of any read path; both are safe to run repeatedly.
type Maintenance struct {
	store    MaintenanceStore
	dailyCap int
	clock    types.Clock
	metrics  types.LedgerMetrics
	logger   *slog.Logger
}

func NewMaintenance(store MaintenanceStore, dailyCap int, clock types.Clock, metrics types.LedgerMetrics, logger *slog.Logger) *Maintenance {
	if clock == nil {
		clock = types.RealClock{}
	}
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{store: store, dailyCap: dailyCap, clock: clock, metrics: metrics, logger: logger}
}

// TopUpDaily grants the free daily allowance for the current UTC day.
//
// Accounts without active premium have credits_remaining raised to the daily
// cap (never lowered, so purchased credits survive). Each account is topped up
// at most once per UTC day; hourly invocations pick up accounts created since
// the last run and are otherwise no-ops.
func (m *Maintenance) TopUpDaily(ctx context.Context) (int, error) {
	if m.dailyCap <= 0 {
		m.logger.InfoContext(ctx, "daily top-up disabled", "daily_cap", m.dailyCap)
		return 0, nil
	}

	now := m.clock.Now()
	day := types.StartOfUTCDay(now)

	n, err := m.store.TopUpCredits(ctx, day, m.dailyCap, now)
	if err != nil {
		return 0, fmt.Errorf("topping up credits for %s: %w", day.Format(time.DateOnly), err)
	}

	m.metrics.RecordCount(ctx, types.MetricCreditTopUps, n)
	m.logger.InfoContext(ctx, "daily credit top-up complete",
		"day", day.Format(time.DateOnly),
		"daily_cap", m.dailyCap,
		"accounts", n,
	)
	return n, nil
}

// ReportExpiredGrants publishes how many grants lapsed in the last completed
// clock hour, so hourly runs report each grant once. Informational only;
// expiry never depends on it.
func (m *Maintenance) ReportExpiredGrants(ctx context.Context) (int, error) {
	to := m.clock.Now().UTC().Truncate(time.Hour)
	from := to.Add(-time.Hour)

	n, err := m.store.CountGrantsExpiredBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("counting expired grants: %w", err)
	}

	m.metrics.RecordCount(ctx, types.MetricGrantsExpired, n)
	m.logger.InfoContext(ctx, "grant expiry report",
		"from", from,
		"to", to,
		"expired", n,
	)
	return n, nil
}
