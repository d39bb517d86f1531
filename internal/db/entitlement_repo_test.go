package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"matchpass/internal/types"
)

var testNow = time.Date(2026, 5, 14, 9, 30, 0, 0, time.UTC)

func entitlementRow(accountID string, credits int, premium *time.Time) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = accountID
		*dest[1].(*int) = credits
		*dest[2].(*int) = 7
		*dest[3].(**time.Time) = premium
		*dest[4].(**time.Time) = nil
		*dest[5].(*bool) = false
		*dest[6].(*int) = 1
		*dest[7].(*time.Time) = testNow
		*dest[8].(*time.Time) = testNow
		return nil
	}}
}

// --- EntitlementRepository Tests ---

func TestEntitlementRepository_GetEntitlement(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEntitlementRepository(db)
	premium := testNow.Add(time.Hour)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"acct_1"}).
		Return(entitlementRow("acct_1", 4, &premium))

	e, err := repo.GetEntitlement(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", e.AccountID)
	assert.Equal(t, 4, e.CreditsRemaining)
	assert.Equal(t, 7, e.CreditsUsedTotal)
	assert.True(t, e.PremiumActive(testNow))
	db.AssertExpectations(t)
}

func TestEntitlementRepository_GetEntitlement_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEntitlementRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetEntitlement(context.Background(), "acct_missing")
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundEntitlement))
}

func TestEntitlementRepository_EnsureEntitlement_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEntitlementRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.EnsureEntitlement(context.Background(), "acct_1", testNow)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
}

func TestEntitlementRepository_DecrementCredit(t *testing.T) {
	tests := []struct {
		name   string
		row    *mockRow
		want   int
		wantOK bool
		errOK  bool
	}{
		{
			name: "decremented",
			row: &mockRow{scanFn: func(dest ...any) error {
				*dest[0].(*int) = 2
				return nil
			}},
			want:   2,
			wantOK: true,
		},
		{
			name: "balance already zero",
			row:  &mockRow{scanErr: pgx.ErrNoRows},
		},
		{
			name:  "db error",
			row:   &mockRow{scanErr: errors.New("deadlock detected")},
			errOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewEntitlementRepository(db)

			db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"acct_1", testNow}).
				Return(tt.row)

			remaining, ok, err := repo.DecrementCredit(context.Background(), "acct_1", testNow)
			if tt.errOK {
				assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, remaining)
		})
	}
}

func TestEntitlementRepository_UpdateEntitlement_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEntitlementRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdateEntitlement(context.Background(), &types.Entitlement{AccountID: "acct_x"})
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundEntitlement))
}

func TestEntitlementRepository_MarkPromoRedeemed(t *testing.T) {
	for _, tc := range []struct {
		tag  string
		want bool
	}{
		{"UPDATE 1", true},
		{"UPDATE 0", false},
	} {
		db := new(mockDBTX)
		repo := NewEntitlementRepository(db)
		until := testNow.Add(90 * 24 * time.Hour)

		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"prov_1", until, 3, testNow}).
			Return(pgconn.NewCommandTag(tc.tag), nil)

		updated, err := repo.MarkPromoRedeemed(context.Background(), "prov_1", until, 3, testNow)
		require.NoError(t, err)
		assert.Equal(t, tc.want, updated, tc.tag)
	}
}

func TestEntitlementRepository_TopUpCredits(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEntitlementRepository(db)
	day := types.StartOfUTCDay(testNow)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{day, 5, testNow}).
		Return(pgconn.NewCommandTag("UPDATE 12"), nil)

	n, err := repo.TopUpCredits(context.Background(), day, 5, testNow)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	db.AssertExpectations(t)
}

// --- VenueRepository Tests ---

func TestVenueRepository_LockVenue(t *testing.T) {
	db := new(mockDBTX)
	repo := NewVenueRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"venue_7", "owner_1", testNow}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"venue_7"}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "venue_7"
			*dest[1].(*string) = "owner_1"
			*dest[4].(*int) = 10
			*dest[5].(*time.Time) = testNow
			return nil
		}})

	v, err := repo.LockVenue(context.Background(), "venue_7", "owner_1", testNow)
	require.NoError(t, err)
	assert.Equal(t, "owner_1", v.OwnerAccountID)
	assert.Equal(t, 10, v.VisibilityScore)
	db.AssertExpectations(t)
}
