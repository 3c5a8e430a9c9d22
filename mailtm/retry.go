package mailtm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Retry configures retry behaviour for failed provider requests
type Retry struct {
	// MaxRetries is the maximum number of retry attempts after the first try
	MaxRetries int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay
	MaxDelay time.Duration
	// Multiplier is the factor the delay grows by after each attempt
	Multiplier float64
	// Jitter is the randomisation factor (0.0 to 1.0) applied to delays
	Jitter float64
	// RetryableOn decides whether a status code is worth retrying
	RetryableOn func(statusCode int) bool
}

// DefaultRetry returns the retry policy used when none is supplied
func DefaultRetry() *Retry {
	return &Retry{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
		RetryableOn: func(statusCode int) bool {
			switch statusCode {
			case 408, 429, 500, 502, 503, 504:
				return true
			default:
				return false
			}
		},
	}
}

// ShouldRetry reports whether another attempt should be made
func (r *Retry) ShouldRetry(attempt int, statusCode int) bool {
	if attempt >= r.MaxRetries {
		return false
	}
	return r.RetryableOn(statusCode)
}

// Delay calculates the backoff before the given retry attempt
func (r *Retry) Delay(attempt int) time.Duration {
	delay := float64(r.BaseDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter > 0 {
		jitterAmount := delay * r.Jitter
		delay = delay - jitterAmount + (rand.Float64() * 2 * jitterAmount)
	}

	return time.Duration(delay)
}

// Wait sleeps for the attempt's backoff delay or until ctx is cancelled
func (r *Retry) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(r.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
