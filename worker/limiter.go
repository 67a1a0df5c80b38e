package worker

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter gates claims by a token-bucket rate and by how many jobs may run
// at once across the pool. It is safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	maxActive int
	active    int
}

// NewLimiter creates a Limiter. A zero perSecond disables rate limiting
// and a zero maxActive disables the concurrency cap. burst defaults to 1
// when a rate is set.
func NewLimiter(perSecond float64, burst, maxActive int) *Limiter {
	l := &Limiter{maxActive: maxActive}
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return l
}

// Acquire reports whether a worker may claim a job now. On success the
// active count is incremented and the caller MUST call Release once the
// claim attempt and any resulting execution are over.
func (l *Limiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxActive > 0 && l.active >= l.maxActive {
		return false
	}
	if l.limiter != nil && !l.limiter.Allow() {
		return false
	}
	l.active++
	return true
}

// Release decrements the active count.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}

// Active returns the number of outstanding acquisitions.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
