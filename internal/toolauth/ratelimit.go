package toolauth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiters tracks a per-agent tool-call rate limiter, keyed by
// agentID, for the guardrail's maxToolCallsPerMinute. Enforcement is
// up to whoever calls Allow; the channel dispatcher's ingress does not
// call it.
type Limiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiters creates an empty limiter registry.
func NewLimiters() *Limiters {
	return &Limiters{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether agentID may make another tool call right now,
// given its guardrail's maxToolCallsPerMinute. A limiter is created
// lazily and resized if the guardrail's rate changed since last use.
func (l *Limiters) Allow(agentID string, maxPerMinute int) bool {
	if maxPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	perSecond := rate.Limit(float64(maxPerMinute) / 60.0)
	lim, ok := l.limiters[agentID]
	if !ok {
		lim = rate.NewLimiter(perSecond, maxPerMinute)
		l.limiters[agentID] = lim
	} else if lim.Limit() != perSecond {
		lim.SetLimit(perSecond)
		lim.SetBurst(maxPerMinute)
	}
	return lim.Allow()
}
