// internal/utils/retry.go
package utils

import (
	"math/rand"
	"time"
)

// Sleeper abstracts time.Sleep so retry loops are testable without real
// delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

func NewSleeper() Sleeper {
	return realSleeper{}
}

// BackoffPolicy computes the delay before a given retry attempt. Attempt
// numbers start at 1.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Cap         time.Duration
	Exponential bool
	Jitter      bool
}

// LinearBackoff grows the delay as baseDelay * attempt.
func LinearBackoff(maxAttempts int, baseDelay time.Duration) BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
	}
}

// ExponentialBackoff doubles the delay per attempt with full jitter, capped.
func ExponentialBackoff(maxAttempts int, baseDelay, cap time.Duration) BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Cap:         cap,
		Exponential: true,
		Jitter:      true,
	}
}

func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	if p.Exponential {
		delay = p.BaseDelay << uint(attempt-1)
	} else {
		delay = p.BaseDelay * time.Duration(attempt)
	}

	if p.Cap > 0 && delay > p.Cap {
		delay = p.Cap
	}

	if p.Jitter && delay > 0 {
		delay = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
	}

	return delay
}
