// Package cooldown implements the in-memory rate gate for XP-granting chat
// events. State is process-local and reset on restart.
package cooldown

import (
	"sync"
	"time"
)

// Gate tracks the last allowed timestamp per user.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

// NewGate creates a gate with the given minimum interval between grants.
func NewGate(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether the user may receive XP at the given instant. When
// allowed, the instant is recorded as the new reference point.
func (g *Gate) Allow(userID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[userID]; ok && now.Sub(last) < g.interval {
		return false
	}
	g.last[userID] = now
	return true
}
