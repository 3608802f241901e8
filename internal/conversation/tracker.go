package conversation

import (
	"sync"
	"time"
)

// Tracker records live operator activity per phone number so the decision
// pipeline can detect operator takeover on incoming webhook events.
//
// Entries older than twice the lockout window are pruned opportunistically
// on writes.
type Tracker struct {
	mu      sync.RWMutex
	lockout time.Duration
	lastOp  map[string]time.Time
}

// NewTracker creates a tracker with the given lockout window.
func NewTracker(lockout time.Duration) *Tracker {
	if lockout <= 0 {
		lockout = 10 * time.Minute
	}
	return &Tracker{
		lockout: lockout,
		lastOp:  make(map[string]time.Time),
	}
}

// RecordOperatorMessage marks the phone number as operator-active at t.
func (t *Tracker) RecordOperatorMessage(phone string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.lastOp[phone]; !ok || at.After(existing) {
		t.lastOp[phone] = at
	}
	t.pruneLocked(at)
}

// OperatorActive reports whether a human operator touched the conversation
// within the lockout window.
func (t *Tracker) OperatorActive(phone string, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last, ok := t.lastOp[phone]
	if !ok {
		return false
	}
	return now.Sub(last) < t.lockout
}

// Lockout returns the configured lockout window.
func (t *Tracker) Lockout() time.Duration {
	return t.lockout
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-2 * t.lockout)
	for phone, last := range t.lastOp {
		if last.Before(cutoff) {
			delete(t.lastOp, phone)
		}
	}
}
