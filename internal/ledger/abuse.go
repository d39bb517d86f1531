package ledger

import (
	"context"
	"time"

	"matchpass/internal/types"
)

// AbuseGuard reports today's consumption against the free daily cap. It is
// advisory only: the authoritative block is credits_remaining.
//
// The window is the calendar UTC day [00:00, next 00:00), the same day
// boundary the daily top-up uses, so both read one number.
type AbuseGuard struct {
	counter UsageCounter
	cap     int
	clock   types.Clock
}

func NewAbuseGuard(counter UsageCounter, dailyCap int, clock types.Clock) *AbuseGuard {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &AbuseGuard{counter: counter, cap: dailyCap, clock: clock}
}

// Cap returns the configured daily cap.
func (g *AbuseGuard) Cap() int {
	return g.cap
}

// DailyUsage counts consumption records in the current UTC day.
func (g *AbuseGuard) DailyUsage(ctx context.Context, accountID string) (types.DailyUsage, error) {
	if accountID == "" {
		return types.DailyUsage{}, types.NewAppError(types.ErrCodeValidationMissingField, "account_id is required", nil)
	}

	start := types.StartOfUTCDay(g.clock.Now())
	used, err := g.counter.CountConsumptions(ctx, accountID, start, start.Add(24*time.Hour))
	if err != nil {
		return types.DailyUsage{}, err
	}

	return types.DailyUsage{
		UsedToday: used,
		Cap:       g.cap,
		Remaining: max(0, g.cap-used),
	}, nil
}
