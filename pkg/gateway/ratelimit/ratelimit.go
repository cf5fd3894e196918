// Package ratelimit keeps one token bucket per client for the control
// endpoints.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	RPS   float64
	Burst int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Decision is the outcome of one Allow call. RetryAfter is whole seconds.
type Decision struct {
	Allowed    bool
	RetryAfter int
}

// New returns a limiter, or nil when cfg.RPS is not positive. A nil limiter
// allows everything.
func New(cfg Config) *Limiter {
	if cfg.RPS <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 3 * time.Minute
	}
	return &Limiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
	}
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string, now time.Time) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	l.sweepLocked(now)
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: 1}
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return Decision{Allowed: true}
	}
	r.CancelAt(now)
	return Decision{Allowed: false, RetryAfter: int(math.Ceil(delay.Seconds()))}
}

// Len reports the number of tracked clients.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *Limiter) sweepLocked(now time.Time) {
	if len(l.visitors) < l.cfg.MaxEntries && now.Sub(l.lastSweep) < l.cfg.EntryTTL {
		return
	}
	l.lastSweep = now
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL {
			delete(l.visitors, key)
		}
	}
	// Still full: drop the stalest entry so the map stays bounded.
	for len(l.visitors) >= l.cfg.MaxEntries {
		var (
			oldestKey string
			oldest    time.Time
			found     bool
		)
		for key, v := range l.visitors {
			if !found || v.lastSeen.Before(oldest) {
				oldestKey, oldest, found = key, v.lastSeen, true
			}
		}
		delete(l.visitors, oldestKey)
	}
}
