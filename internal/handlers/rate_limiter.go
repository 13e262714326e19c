package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucketIdleEviction is how long a client bucket may sit unused before the
// sweep drops it.
const bucketIdleEviction = 10 * time.Minute

type rateLimiter interface {
	Allow(key string) bool
}

// clientLimiter keeps a token bucket per client key. Buckets refill at the
// configured per-minute rate and idle buckets are swept so the map does not
// grow with every address that ever hit the API.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perMinute int) rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &clientLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &clientBucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now
	l.sweepLocked(now)
	return bucket.tokens.Allow()
}

func (l *clientLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > bucketIdleEviction {
			delete(l.buckets, key)
		}
	}
}
