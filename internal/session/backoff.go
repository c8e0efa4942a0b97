package session

import (
	"math"
	"time"
)

const (
	// DefaultBackoffCap bounds the wait between login attempts.
	DefaultBackoffCap = 5 * time.Minute

	backoffDivisor = 1.7
)

// LoginBackOff is the capped exponential login policy: after the f-th
// consecutive failure (zero based) it waits min(e^(f/1.7), cap) seconds.
// It satisfies backoff.BackOff from github.com/cenkalti/backoff/v5.
type LoginBackOff struct {
	Cap      time.Duration
	failures int
}

// NextBackOff returns the wait for the current failure count and advances it.
func (b *LoginBackOff) NextBackOff() time.Duration {
	d := LoginDelay(b.failures, b.Cap)
	b.failures++
	return d
}

// Reset clears the failure count.
func (b *LoginBackOff) Reset() { b.failures = 0 }

// LoginDelay returns min(e^(failures/1.7) seconds, limit). A non-positive limit
// falls back to DefaultBackoffCap.
func LoginDelay(failures int, limit time.Duration) time.Duration {
	if limit <= 0 {
		limit = DefaultBackoffCap
	}
	secs := math.Exp(float64(failures) / backoffDivisor)
	if secs >= limit.Seconds() {
		return limit
	}
	return time.Duration(secs * float64(time.Second))
}
