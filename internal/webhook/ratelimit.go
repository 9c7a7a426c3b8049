package webhook

import (
	"sync"
	"time"
)

// TenantRateLimiter throttles inbound deliveries per tenant endpoint with a
// token bucket. A throttled delivery is answered 429 and the provider
// retries it, so nothing is lost once the tenant's burst refills.
type TenantRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // max tokens
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewTenantRateLimiter creates a limiter allowing rate deliveries/sec with
// the given burst size per tenant key.
func NewTenantRateLimiter(rate float64, burst int) *TenantRateLimiter {
	l := &TenantRateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
	// Evict buckets of tenants that went quiet so the map stays bounded.
	go l.evictIdle()
	return l
}

// Allow reports whether the tenant keyed by key may deliver another event
// right now, consuming a token when it may.
func (l *TenantRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastSeen: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *TenantRateLimiter) evictIdle() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := l.now().Add(-10 * time.Minute)
		for key, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

var _ RateLimiter = (*TenantRateLimiter)(nil)
