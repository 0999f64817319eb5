// Package ratelimit holds the in-process guards that keep the service from
// hammering the payment gateway.
package ratelimit

import (
	"sync"
	"time"

	"github.com/goldsip/goldsip/internal/clock"
)

// Debouncer is a token bucket of capacity one with a fixed refill window.
// Allow consumes the token when present; callers arriving inside the window
// are rejected. Process-local only.
type Debouncer struct {
	clock  clock.Clock
	window time.Duration

	mu       sync.Mutex
	lastPass time.Time
}

func NewDebouncer(clk clock.Clock, window time.Duration) *Debouncer {
	return &Debouncer{clock: clk, window: window}
}

// Allow reports whether the caller may proceed, consuming the token if so.
func (d *Debouncer) Allow() bool {
	if d == nil || d.window <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if !d.lastPass.IsZero() && now.Sub(d.lastPass) < d.window {
		return false
	}
	d.lastPass = now
	return true
}

// Remaining returns how long until the next call would be allowed.
func (d *Debouncer) Remaining() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastPass.IsZero() {
		return 0
	}
	left := d.window - d.clock.Now().Sub(d.lastPass)
	if left < 0 {
		return 0
	}
	return left
}
