// Package backoff provides retry delay strategies for failed jobs.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"time"
)

// Strategy computes how long a failed job waits before it may be claimed again.
type Strategy interface {
	// Delay returns the wait after the given number of failed attempts.
	// Attempt 1 is the wait after the first failure.
	Delay(attempt int) time.Duration
}

// MaxDelay is the largest delay any strategy returns.
const MaxDelay = time.Duration(math.MaxInt64)

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Power
// ──────────────────────────────────────────────────

// Power waits Base^attempt seconds, capped at Max.
// With Base 2 the waits are 2s, 4s, 8s, ...
type Power struct {
	Base float64
	Max  time.Duration
}

// NewPower creates a power backoff strategy. A zero maxDelay means no cap
// beyond MaxDelay.
func NewPower(base float64, maxDelay time.Duration) *Power {
	return &Power{Base: base, Max: maxDelay}
}

// Limit returns the effective cap.
func (p *Power) Limit() time.Duration {
	if p.Max <= 0 {
		return MaxDelay
	}
	return p.Max
}

// Delay returns Base^attempt seconds, capped at Max. Attempts below 1
// yield zero.
func (p *Power) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	limit := p.Limit()
	secs := math.Pow(p.Base, float64(attempt))
	if math.IsNaN(secs) || secs < 0 {
		return 0
	}
	d := secs * float64(time.Second)
	if d >= float64(limit) {
		return limit
	}
	return time.Duration(d)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultBase is the base used when none is configured.
const DefaultBase = 2.0

// DefaultStrategy returns Power with DefaultBase and no cap.
func DefaultStrategy() Strategy {
	return NewPower(DefaultBase, 0)
}
