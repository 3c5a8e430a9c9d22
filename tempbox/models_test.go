package tempbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountExpired(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		expected  bool
	}{
		{name: "in the future", expiresAt: now.Add(time.Minute), expected: false},
		{name: "exactly now", expiresAt: now, expected: true},
		{name: "in the past", expiresAt: now.Add(-time.Minute), expected: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a := Account{ExpiresAt: test.expiresAt}
			assert.Equal(t, test.expected, a.Expired(now))
		})
	}
}

func TestAccountRemaining(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		expected  time.Duration
	}{
		{name: "ten minutes left", expiresAt: now.Add(10 * time.Minute), expected: 10 * time.Minute},
		{name: "already expired", expiresAt: now.Add(-time.Hour), expected: 0},
		{name: "exactly now", expiresAt: now, expected: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a := Account{ExpiresAt: test.expiresAt}
			assert.Equal(t, test.expected, a.Remaining(now))
		})
	}
}

func TestComputeStats(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	accounts := []Account{
		{ID: "live", ExpiresAt: now.Add(time.Hour)},
		{ID: "expired", ExpiresAt: now.Add(-time.Hour)},
		{ID: "expired-and-failing", ExpiresAt: now.Add(-time.Hour), CleanupAttempts: 3},
		// deleted accounts only count towards the deleted total, even when
		// their expiry is in the past
		{ID: "deleted", Deleted: true, ExpiresAt: now.Add(-time.Hour), CleanupAttempts: 1},
	}

	stats := ComputeStats(accounts, now)

	assert.Equal(t, 4, stats.TotalAccounts)
	assert.Equal(t, 2, stats.ExpiredAccounts)
	assert.Equal(t, 1, stats.DeletedAccounts)
	assert.Equal(t, 1, stats.FailedAccounts)
	assert.Equal(t, now, stats.LastRunAt)
}

func TestComputeStatsEmpty(t *testing.T) {
	now := time.Now()
	stats := ComputeStats(nil, now)

	assert.Equal(t, CleanupStats{LastRunAt: now}, stats)
}
