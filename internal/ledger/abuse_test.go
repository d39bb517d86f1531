package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchpass/internal/types"
)

func TestAbuseGuard_CountsCalendarUTCDay(t *testing.T) {
	store := newMemStore()
	start := types.StartOfUTCDay(testNow)
	store.consumptions = []types.ConsumptionRecord{
		{AccountID: "acct_1", OccurredAt: start.Add(-time.Nanosecond)}, // yesterday
		{AccountID: "acct_1", OccurredAt: start},
		{AccountID: "acct_1", OccurredAt: start.Add(3 * time.Hour)},
		{AccountID: "acct_2", OccurredAt: start.Add(time.Hour)},
		{AccountID: "acct_1", OccurredAt: start.Add(24 * time.Hour)}, // tomorrow
	}

	guard := NewAbuseGuard(store, 5, newFakeClock(testNow))
	usage, err := guard.DailyUsage(context.Background(), "acct_1")
	require.NoError(t, err)

	assert.Equal(t, types.DailyUsage{UsedToday: 2, Cap: 5, Remaining: 3}, usage)
}

func TestAbuseGuard_RemainingNeverNegative(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 7; i++ {
		store.consumptions = append(store.consumptions, types.ConsumptionRecord{
			AccountID:  "acct_heavy",
			OccurredAt: testNow.Add(-time.Duration(i) * time.Minute),
		})
	}

	guard := NewAbuseGuard(store, 5, newFakeClock(testNow))
	usage, err := guard.DailyUsage(context.Background(), "acct_heavy")
	require.NoError(t, err)
	assert.Equal(t, 7, usage.UsedToday)
	assert.Equal(t, 0, usage.Remaining)
	assert.Equal(t, 5, guard.Cap())
}

func TestAbuseGuard_FollowsConsumption(t *testing.T) {
	store := newMemStore()
	store.seed("acct_1", 5)
	clock := newFakeClock(testNow)
	credits := NewCreditService(CreditServiceConfig{Store: store, Clock: clock})
	guard := NewAbuseGuard(store, 5, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := credits.Consume(ctx, "acct_1", "t", types.ActionNegative)
		require.NoError(t, err)
	}

	usage, err := guard.DailyUsage(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, 3, usage.UsedToday)
	assert.Equal(t, 2, usage.Remaining)

	clock.Advance(24 * time.Hour)
	usage, err = guard.DailyUsage(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.UsedToday, "new UTC day starts from zero")
}
