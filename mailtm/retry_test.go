package mailtm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryShouldRetry(t *testing.T) {
	r := DefaultRetry()

	tests := []struct {
		name       string
		attempt    int
		statusCode int
		expected   bool
	}{
		{name: "server error first attempt", attempt: 0, statusCode: 500, expected: true},
		{name: "bad gateway", attempt: 0, statusCode: 502, expected: true},
		{name: "service unavailable", attempt: 1, statusCode: 503, expected: true},
		{name: "gateway timeout", attempt: 0, statusCode: 504, expected: true},
		{name: "rate limited", attempt: 0, statusCode: 429, expected: true},
		{name: "request timeout", attempt: 0, statusCode: 408, expected: true},
		{name: "not found", attempt: 0, statusCode: 404, expected: false},
		{name: "unauthorized", attempt: 0, statusCode: 401, expected: false},
		{name: "unprocessable", attempt: 0, statusCode: 422, expected: false},
		{name: "attempts exhausted", attempt: 3, statusCode: 503, expected: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, r.ShouldRetry(test.attempt, test.statusCode))
		})
	}
}

func TestRetryDelayGrowth(t *testing.T) {
	r := &Retry{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	}

	assert.Equal(t, time.Second, r.Delay(0))
	assert.Equal(t, 2*time.Second, r.Delay(1))
	assert.Equal(t, 4*time.Second, r.Delay(2))

	// capped from here on
	assert.Equal(t, 5*time.Second, r.Delay(3))
	assert.Equal(t, 5*time.Second, r.Delay(10))
}

func TestRetryDelayJitterBounds(t *testing.T) {
	r := &Retry{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}

	for i := 0; i < 100; i++ {
		d := r.Delay(1)
		assert.GreaterOrEqual(t, d, 1600*time.Millisecond)
		assert.LessOrEqual(t, d, 2400*time.Millisecond)
	}
}

func TestRetryWaitCancelled(t *testing.T) {
	r := &Retry{
		BaseDelay:  time.Hour,
		MaxDelay:   time.Hour,
		Multiplier: 1.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := r.Wait(ctx, 0)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
