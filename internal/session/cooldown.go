package session

import (
	"fmt"
	"sync"
	"time"
)

// CooldownError reports how long until a gated command may run again.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("on cooldown, retry in %s", e.Remaining.Round(time.Second))
}

// Gate enforces fixed-window per-key cooldowns. Keys are
// guild:user:command tuples.
type Gate struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewGate creates an empty cooldown gate.
func NewGate() *Gate {
	return &Gate{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Try records a use of key if its window has elapsed, or returns a
// CooldownError with the remaining wait.
func (g *Gate) Try(key string, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.last[key]; ok {
		if wait := window - now.Sub(last); wait > 0 {
			return &CooldownError{Remaining: wait}
		}
	}
	g.last[key] = now
	return nil
}
