package auth

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/time/rate"
)

const (
	limiterCap       = 500
	limiterIdleEvict = 2 * time.Minute
)

// EndpointLimit is a per-minute request budget for one endpoint.
type EndpointLimit struct {
	PerMinute int
	Burst     int
}

// DefaultLimits is the per-endpoint budget used by the API surface.
var DefaultLimits = map[string]EndpointLimit{
	"join":    {PerMinute: 10, Burst: 10},
	"action":  {PerMinute: 30, Burst: 30},
	"chat":    {PerMinute: 12, Burst: 12},
	"leave":   {PerMinute: 10, Burst: 10},
	"state":   {PerMinute: 120, Burst: 120},
	"ranked":  {PerMinute: 10, Burst: 10},
	"default": {PerMinute: 20, Burst: 20},
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces per-(source address, endpoint) token buckets.
// Entries are pruned individually when the table grows past its cap; the
// map is never wiped wholesale, since a wipe would reopen a burst window
// for every active source at once.
type RateLimiter struct {
	mu      sync.Mutex
	clock   quartz.Clock
	limits  map[string]EndpointLimit
	entries map[string]*limiterEntry
}

// NewRateLimiter creates a limiter with the given per-endpoint budgets.
// Endpoints without an explicit budget fall back to "default".
func NewRateLimiter(clock quartz.Clock, limits map[string]EndpointLimit) *RateLimiter {
	if limits == nil {
		limits = DefaultLimits
	}
	return &RateLimiter{
		clock:   clock,
		limits:  limits,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow reports whether one request from addr to endpoint fits the budget.
// When it does not, the returned duration is how long the caller should
// wait before retrying.
func (rl *RateLimiter) Allow(addr, endpoint string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	key := addr + "|" + endpoint
	entry, ok := rl.entries[key]
	if !ok {
		limit, ok := rl.limits[endpoint]
		if !ok {
			limit = rl.limits["default"]
		}
		entry = &limiterEntry{
			lim: rate.NewLimiter(rate.Limit(float64(limit.PerMinute)/60.0), limit.Burst),
		}
		rl.entries[key] = entry
		if len(rl.entries) > limiterCap {
			rl.pruneLocked(now)
		}
	}
	entry.lastSeen = now

	if entry.lim.AllowN(now, 1) {
		return true, 0
	}
	res := entry.lim.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	return false, delay
}

// pruneLocked evicts only idle entries. Active sources keep their buckets.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for key, entry := range rl.entries {
		if now.Sub(entry.lastSeen) > limiterIdleEvict {
			delete(rl.entries, key)
		}
	}
}
