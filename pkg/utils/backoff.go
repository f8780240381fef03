package utils

import (
	"math"
	"time"
)

// BackoffStrategy represents a retry backoff strategy
type BackoffStrategy interface {
	// NextDelay returns the delay before the given retry attempt (1-indexed)
	NextDelay(attempt int) time.Duration
}

// ConstantBackoff waits the same delay before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns the constant delay
func (cb ConstantBackoff) NextDelay(int) time.Duration {
	return cb.Delay
}

// LinearBackoff grows the delay by BaseDelay per attempt, capped at MaxDelay
type LinearBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NextDelay returns the linearly increasing delay
func (lb LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := lb.BaseDelay * time.Duration(attempt)
	if lb.MaxDelay > 0 && delay > lb.MaxDelay {
		return lb.MaxDelay
	}
	return delay
}

// ExponentialBackoff doubles (by Multiplier) the delay per attempt, capped at MaxDelay
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     bool
}

// NextDelay returns the exponentially increasing delay
func (eb ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := eb.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(eb.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	if eb.Jitter {
		// random value between 0.5*delay and 1.5*delay
		delay *= 0.5 + Float64()
	}
	return time.Duration(delay)
}

// NewBackoff creates a backoff strategy by name ("constant", "linear" or
// "exponential"). Unknown names fall back to exponential without jitter.
func NewBackoff(kind string, base, max time.Duration) BackoffStrategy {
	if max == 0 {
		max = 30 * time.Second
	}

	switch kind {
	case "constant":
		return ConstantBackoff{Delay: base}
	case "linear":
		return LinearBackoff{BaseDelay: base, MaxDelay: max}
	case "exponential-jitter":
		return ExponentialBackoff{BaseDelay: base, Multiplier: 2, MaxDelay: max, Jitter: true}
	default:
		return ExponentialBackoff{BaseDelay: base, Multiplier: 2, MaxDelay: max}
	}
}
