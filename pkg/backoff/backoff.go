// Package backoff provides the reconnect delay policy used by session
// supervisors and context-aware sleeping for throttled send loops.
package backoff

import (
	"context"
	"time"
)

// Policy computes reconnect delays as Base * 2^min(AttemptCap, attempt),
// clamped to Max. Attempt numbers start at 0.
type Policy struct {
	Base       time.Duration
	Max        time.Duration
	AttemptCap int
}

// DefaultPolicy matches the supervisor defaults: 5s base, 5m max, cap at 6
// doublings.
func DefaultPolicy() Policy {
	return Policy{
		Base:       5 * time.Second,
		Max:        5 * time.Minute,
		AttemptCap: 6,
	}
}

// Delay returns the backoff duration for the given attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.AttemptCap > 0 && attempt > p.AttemptCap {
		attempt = p.AttemptCap
	}
	d := p.Base << uint(attempt)
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// Sleep waits for the given duration, returning early with ctx.Err() if the
// context is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
