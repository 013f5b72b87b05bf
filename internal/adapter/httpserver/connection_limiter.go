package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTimeout     = 10 * time.Minute
)

// globalStreamLimiter caps concurrent event streams per instance.
type globalStreamLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalStreamLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalStreamLimiter) release() {
	l.current.Add(-1)
}

// ipStreamLimiter caps concurrent event streams per client IP.
type ipStreamLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func (l *ipStreamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ipStreamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *ipStreamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

// connectRateLimiter limits how often one IP may open a stream, using a token
// bucket per IP. Buckets idle for 10 minutes are dropped.
type connectRateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (l *connectRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-rateLimiterIdleTimeout)
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.cleanupAt = now.Add(rateLimiterCleanupInterval)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *connectRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// LimitReason describes why a stream was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits combines the global, per-IP and connect-rate limits on
// event streams.
type ConnectionLimits struct {
	global *globalStreamLimiter
	perIP  *ipStreamLimiter
	rate   *connectRateLimiter
}

func NewConnectionLimits(globalMax int64, perIPMax int, connectsPerSecond float64, burst int, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		global: &globalStreamLimiter{max: globalMax},
		perIP:  &ipStreamLimiter{ips: make(map[string]int), maxPer: perIPMax},
		rate: &connectRateLimiter{
			clock:     clock,
			limiters:  make(map[string]*rateLimiterEntry),
			rate:      rate.Limit(connectsPerSecond),
			burst:     burst,
			cleanupAt: clock.Now().Add(rateLimiterCleanupInterval),
		},
	}
}

// Acquire takes a stream slot for ip. On success the caller must Release.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.rate.allow(ip) {
		return false, LimitReasonRate
	}
	if !l.global.acquire() {
		return false, LimitReasonGlobal
	}
	if !l.perIP.acquire(ip) {
		l.global.release()
		return false, LimitReasonPerIP
	}
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.perIP.release(ip)
	l.global.release()
}

// Current returns the number of streams holding a slot.
func (l *ConnectionLimits) Current() int64 {
	return l.global.current.Load()
}
