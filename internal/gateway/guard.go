package gateway

import (
	"sync"
	"time"
)

// DefaultCooldown is how long repeated authentication failures are
// suppressed after one has been handled.
const DefaultCooldown = 2000 * time.Millisecond

// authGuard debounces authentication failure handling. It is handling from
// the moment a failure is accepted until the cooldown has elapsed, and idle
// otherwise; failures seen while handling are dropped.
type authGuard struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	last     time.Time
}

func newAuthGuard(cooldown time.Duration, now func() time.Time) *authGuard {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &authGuard{cooldown: cooldown, now: now}
}

// acquire reports whether the caller should handle this failure.
func (g *authGuard) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if g.handlingAt(now) {
		return false
	}
	g.last = now
	return true
}

func (g *authGuard) handling() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handlingAt(g.now())
}

func (g *authGuard) handlingAt(now time.Time) bool {
	return !g.last.IsZero() && now.Sub(g.last) < g.cooldown
}
