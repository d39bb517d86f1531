package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in     string
		want   Action
		wantOK bool
	}{
		{"positive", ActionPositive, true},
		{"negative", ActionNegative, true},
		{"like", ActionPositive, true},
		{" PASS ", ActionNegative, true},
		{"superlike", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAction(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestUnlockGrant_IsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := UnlockGrant{GrantedAt: now, ExpiresAt: now.Add(24 * time.Hour)}

	assert.True(t, g.IsActive(now))
	assert.True(t, g.IsActive(now.Add(24*time.Hour-time.Nanosecond)))
	assert.False(t, g.IsActive(now.Add(24*time.Hour)), "expiry boundary is exclusive")
	assert.False(t, g.IsActive(now.Add(25*time.Hour)))

	revoked := now.Add(time.Hour)
	g.RevokedAt = &revoked
	assert.False(t, g.IsActive(now.Add(2*time.Hour)))
}

func TestEntitlement_ActiveWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	e := Entitlement{PremiumUntil: &until}

	assert.True(t, e.PremiumActive(now))
	assert.False(t, e.PremiumActive(until))
	assert.False(t, e.BoostActive(now), "nil boost is inactive")
}

func TestStartOfUTCDay(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	in := time.Date(2026, 3, 2, 3, 30, 0, 0, loc) // 2026-03-01 20:30 UTC
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), StartOfUTCDay(in))
}
