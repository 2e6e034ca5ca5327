// ABOUTME: Fixed-window request throttle with global and per-key counters.
// ABOUTME: All counter state lives in one lock-guarded map owned by the limiter.

package throttle

import (
	"log/slog"
	"sync"
	"time"
)

// Scope identifies which counter produced a decision.
type Scope string

const (
	// ScopeGlobal is the shared counter across all keys.
	ScopeGlobal Scope = "global"
	// ScopeKey is the counter for a single throttle key.
	ScopeKey Scope = "key"
)

// Config holds the limiter settings. A zero limit disables that counter.
type Config struct {
	// Window is the fixed counting window. Counters reset at window
	// boundaries, so a burst of up to twice the limit can land across an
	// edge. That is the accepted behavior of this limiter, not a bug.
	Window time.Duration
	// GlobalLimit caps admitted requests per window across all keys.
	GlobalLimit int
	// PerKeyLimit caps admitted requests per window for each key, unless
	// overridden via SetKeyLimit.
	PerKeyLimit int
	// Bypass admits everything without counting. Used in demo mode.
	Bypass bool
}

// Decision reports the outcome of a single Allow call.
type Decision struct {
	Allowed bool
	// Scope is the counter that rejected the request, or the per-key
	// counter on admission.
	Scope Scope
	// Limit and Count describe that counter at decision time.
	Limit int
	Count int
	// RetryAfter is how long until the rejecting window resets. Zero when
	// admitted.
	RetryAfter time.Duration
}

// bucket is a single fixed-window counter.
type bucket struct {
	windowStart time.Time
	count       int
	// limit overrides Config.PerKeyLimit for this key when non-zero.
	limit    int
	lastSeen time.Time
}

// Limiter admits or rejects requests against a global and a per-key
// fixed-window counter. The full read-reset-count-compare sequence for a
// request runs under one mutex, so decisions are serialized and exact.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	global bucket
	keys   map[string]*bucket
	logger *slog.Logger
	done   chan struct{}
	closed bool
}

// New creates a limiter and starts its background sweep. The sweep only
// evicts idle per-key buckets; it never counts requests and never performs
// I/O while holding the lock.
func New(cfg Config, logger *slog.Logger) *Limiter {
	l := &Limiter{
		cfg:    cfg,
		keys:   make(map[string]*bucket),
		logger: logger.With("component", "throttle"),
		done:   make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow decides whether one request for key may proceed. A request is
// admitted only if both enabled counters are below their limits; it then
// counts against both. A rejected request counts against neither.
func (l *Limiter) Allow(key string) Decision {
	if l.cfg.Bypass {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if l.cfg.GlobalLimit > 0 {
		rollWindow(&l.global, now, l.cfg.Window)
		if l.global.count >= l.cfg.GlobalLimit {
			return Decision{
				Scope:      ScopeGlobal,
				Limit:      l.cfg.GlobalLimit,
				Count:      l.global.count,
				RetryAfter: windowRemaining(&l.global, now, l.cfg.Window),
			}
		}
	}

	var kb *bucket
	limit := 0
	if l.cfg.PerKeyLimit > 0 || l.hasOverride(key) {
		kb = l.bucketFor(key)
		kb.lastSeen = now
		rollWindow(kb, now, l.cfg.Window)
		limit = l.cfg.PerKeyLimit
		if kb.limit > 0 {
			limit = kb.limit
		}
		if limit > 0 && kb.count >= limit {
			return Decision{
				Scope:      ScopeKey,
				Limit:      limit,
				Count:      kb.count,
				RetryAfter: windowRemaining(kb, now, l.cfg.Window),
			}
		}
	}

	// Both counters admit; count the request against each.
	if l.cfg.GlobalLimit > 0 {
		l.global.count++
	}
	if kb != nil {
		kb.count++
		return Decision{Allowed: true, Scope: ScopeKey, Limit: limit, Count: kb.count}
	}
	return Decision{Allowed: true, Scope: ScopeGlobal, Limit: l.cfg.GlobalLimit, Count: l.global.count}
}

// SetKeyLimit overrides the per-key limit for one key. A limit of zero or
// less clears the override. The override survives bucket eviction.
func (l *Limiter) SetKeyLimit(key string, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		if b, ok := l.keys[key]; ok {
			b.limit = 0
		}
		return
	}
	b := l.bucketFor(key)
	b.limit = limit
	l.logger.Debug("per-key limit overridden", "key", key, "limit", limit)
}

// KeyLimit returns the effective per-key limit for key.
func (l *Limiter) KeyLimit(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.keys[key]; ok && b.limit > 0 {
		return b.limit
	}
	return l.cfg.PerKeyLimit
}

// Remaining returns how many more requests key may make in the current
// window. Reading never counts as a request. Returns zero when the per-key
// counter is disabled for this key.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.cfg.PerKeyLimit
	b, ok := l.keys[key]
	if ok && b.limit > 0 {
		limit = b.limit
	}
	if limit <= 0 {
		return 0
	}
	if !ok || time.Since(b.windowStart) >= l.cfg.Window {
		return limit
	}
	remaining := limit - b.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// bucketFor returns the bucket for key, creating it if needed. Must be
// called with mu held.
func (l *Limiter) bucketFor(key string) *bucket {
	b, ok := l.keys[key]
	if !ok {
		b = &bucket{windowStart: time.Now(), lastSeen: time.Now()}
		l.keys[key] = b
	}
	return b
}

// hasOverride reports whether key carries a limit override. Must be called
// with mu held.
func (l *Limiter) hasOverride(key string) bool {
	b, ok := l.keys[key]
	return ok && b.limit > 0
}

// rollWindow resets a bucket whose window has elapsed. Expiry is checked on
// the request path rather than by a timer, so counters are exact even if the
// sweep lags.
func rollWindow(b *bucket, now time.Time, window time.Duration) {
	if now.Sub(b.windowStart) >= window {
		b.windowStart = now
		b.count = 0
	}
}

// windowRemaining returns the time until the bucket's current window ends.
func windowRemaining(b *bucket, now time.Time, window time.Duration) time.Duration {
	remaining := window - now.Sub(b.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// sweep periodically evicts per-key buckets that have been idle for longer
// than one window. Buckets carrying a limit override are kept so the
// override is not lost.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runSweep()
		case <-l.done:
			return
		}
	}
}

// runSweep removes idle buckets. Holds the lock for one pass, no I/O.
func (l *Limiter) runSweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.keys {
		if b.limit > 0 {
			continue
		}
		if now.Sub(b.lastSeen) > l.cfg.Window {
			delete(l.keys, key)
		}
	}
}

// Close stops the background sweep. Safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
