// Package impl contains the application-specific business rules implementations.
package impl

import (
	"sync"
	"time"
)

// magicLinkLimiter enforces the client-side cooldown between magic-link
// requests. It only tracks the last dispatch time; the check never sleeps.
type magicLinkLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSend time.Time
	now      func() time.Time
}

func newMagicLinkLimiter(cooldown time.Duration, now func() time.Time) *magicLinkLimiter {
	if now == nil {
		now = time.Now
	}

	return &magicLinkLimiter{cooldown: cooldown, now: now}
}

// CanSend reports whether a new request may be dispatched.
func (l *magicLinkLimiter) CanSend() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastSend.IsZero() || l.now().Sub(l.lastSend) >= l.cooldown
}

// Remaining returns how long until the next request is allowed. Zero when a
// request may be sent now.
func (l *magicLinkLimiter) Remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastSend.IsZero() {
		return 0
	}

	remaining := l.cooldown - l.now().Sub(l.lastSend)
	if remaining < 0 {
		return 0
	}

	return remaining
}

// RecordSend stores the dispatch time. Called after the request is handed to
// the provider, not after the out-of-band flow completes.
func (l *magicLinkLimiter) RecordSend() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSend = l.now()

	return l.lastSend
}
