package feed

import "time"

// Backoff computes reconnect delays: attempt n waits min(base*2^n, cap).
// It is stateless; the monitor owns the attempt counter because that counter
// is part of the user-visible connection status.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff starts at one second and caps at thirty.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 30 * time.Second}
}

// Delay returns the wait before the given attempt. Attempt numbering starts
// at 0 for the first retry.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	capped := b.Cap
	if capped <= 0 {
		capped = 30 * time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	// 2^attempt overflows a Duration long before attempt reaches 63.
	if attempt > 32 {
		return capped
	}
	delay := base << uint(attempt)
	if delay > capped || delay <= 0 {
		return capped
	}
	return delay
}
