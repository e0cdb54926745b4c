// Package throttle limits authentication attempts per (client address,
// claimed identity) in a sliding window.
package throttle

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Limiter decides whether an attempt may proceed and records it when it
// does. Implementations backed by a shared store can replace MemoryLimiter
// without touching callers.
type Limiter interface {
	Allow(addr, identity string) bool
}

// MemoryLimiter keeps attempt instants in process memory. State is lost on
// restart and not shared between instances.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	window   time.Duration
	limit    int
	now      func() time.Time
}

// NewMemoryLimiter allows limit attempts per key within window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		attempts: make(map[string][]time.Time),
		window:   window,
		limit:    limit,
		now:      time.Now,
	}
}

func key(addr, identity string) string {
	sum := sha256.Sum256([]byte(addr + "\x00" + strings.ToLower(identity)))
	return hex.EncodeToString(sum[:])
}

// Allow prunes attempts older than the window, rejects when the remaining
// count has reached the limit and otherwise records the attempt. Rejected
// attempts are not recorded, so a throttled client regains access exactly
// one window after its oldest counted attempt.
func (l *MemoryLimiter) Allow(addr, identity string) bool {
	k := key(addr, identity)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.attempts[k], now.Add(-l.window))
	if len(recent) >= l.limit {
		l.attempts[k] = recent
		return false
	}
	l.attempts[k] = append(recent, now)
	return true
}

// Reset forgets the attempts of one key, e.g. after a successful login.
func (l *MemoryLimiter) Reset(addr, identity string) {
	l.mu.Lock()
	delete(l.attempts, key(addr, identity))
	l.mu.Unlock()
}

// Sweep drops keys with no attempt inside the window and returns how many
// keys remain.
func (l *MemoryLimiter) Sweep() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ts := range l.attempts {
		if recent := prune(ts, cutoff); len(recent) == 0 {
			delete(l.attempts, k)
		} else {
			l.attempts[k] = recent
		}
	}
	return len(l.attempts)
}

// prune drops instants at or before cutoff. ts is in insertion order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
