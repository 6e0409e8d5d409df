package transport

import (
	"math"
	"math/rand"
	"time"
)

// Default reconnect tuning.
const (
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 2 * time.Minute
	DefaultMaxAttempts = 10

	// stableAfter is how long a connection must hold before the attempt
	// counter resets, so a flapping link still exhausts the bound.
	stableAfter = 60 * time.Second
)

// reconnector tracks exponential backoff state across reconnect attempts.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(base, max time.Duration, attempts int) *reconnector {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return &reconnector{baseDelay: base, maxDelay: max, maxAttempts: attempts}
}

// shouldReconnect reports whether another attempt is allowed.
func (r *reconnector) shouldReconnect() bool {
	return r.attempt < r.maxAttempts
}

// markConnected records a successful connect.
func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

// nextDelay returns the backoff before the next attempt and advances the
// attempt counter. The counter resets after a stable connection.
func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > stableAfter {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
	r.connectedAt = time.Time{}
}
