// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type rateLimitDecision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// pushRateLimiter keeps one token bucket per push source. Buckets idle long
// enough to refill completely are dropped, since a fresh bucket is identical.
type pushRateLimiter struct {
	mu              sync.Mutex
	capacity        float64
	refillPerSecond float64
	fullRefill      time.Duration
	lastSweep       time.Time
	buckets         map[string]*tokenBucket
}

func newPushRateLimiter(limitPerMinute int) *pushRateLimiter {
	if limitPerMinute <= 0 {
		limitPerMinute = 1
	}
	capacity := float64(limitPerMinute)
	return &pushRateLimiter{
		capacity:        capacity,
		refillPerSecond: capacity / 60.0,
		fullRefill:      time.Minute,
		buckets:         make(map[string]*tokenBucket, 8),
	}
}

func (l *pushRateLimiter) Allow(key string, now time.Time) rateLimitDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = bucket
	}

	if elapsed := now.Sub(bucket.lastRefill).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(l.capacity, bucket.tokens+elapsed*l.refillPerSecond)
		bucket.lastRefill = now
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return rateLimitDecision{Allowed: true, Remaining: int(math.Floor(bucket.tokens))}
	}

	wait := int(math.Ceil((1 - bucket.tokens) / l.refillPerSecond))
	if wait < 1 {
		wait = 1
	}
	return rateLimitDecision{RetryAfterSeconds: wait}
}

// sweep runs at most once per refill period.
func (l *pushRateLimiter) sweep(now time.Time) {
	if l.lastSweep.IsZero() {
		l.lastSweep = now
		return
	}
	if now.Sub(l.lastSweep) < l.fullRefill {
		return
	}
	l.lastSweep = now

	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) >= l.fullRefill {
			delete(l.buckets, key)
		}
	}
}

// PushRateLimit caps accepted pushes per source address. A 429 is a negative
// acknowledgement to the push subscription, which backs off and redelivers.
func PushRateLimit(limitPerMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	return pushRateLimit(newPushRateLimiter(limitPerMinute), time.Now, logger)
}

func pushRateLimit(limiter *pushRateLimiter, now func() time.Time, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			decision := limiter.Allow(key, now())
			if !decision.Allowed {
				logger.Warn("push rate limited",
					"client", key,
					"retry_after_seconds", decision.RetryAfterSeconds,
				)
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
