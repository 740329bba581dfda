package gossip

import (
	"sync"
	"time"
)

// senderBucket is a per-(sender,topic) token bucket, the same shape as
// the teacher's per-IP RateLimiter but keyed by signer identity instead
// of network address — gossip rate limits are advisory and per-sender,
// not per-connection (spec.md §4.7, §5).
type senderBucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter enforces a per-sender, per-topic message budget. Lossy by
// design: bucket state lives in memory only and resets on restart.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*senderBucket
}

// NewRateLimiter builds an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*senderBucket)}
}

// Allow reports whether sender may send on topic right now, given a
// budget of count messages per windowSeconds, refilling continuously.
func (rl *RateLimiter) Allow(sender, topic string, count int, windowSeconds int64, now time.Time) bool {
	if count <= 0 || windowSeconds <= 0 {
		return true
	}
	rate := float64(count) / float64(windowSeconds)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := topic + "|" + sender
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &senderBucket{tokens: float64(count), lastSeen: now}
		rl.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastSeen).Seconds()
	bucket.tokens += elapsed * rate
	if bucket.tokens > float64(count) {
		bucket.tokens = float64(count)
	}
	bucket.lastSeen = now

	if bucket.tokens >= 1.0 {
		bucket.tokens--
		return true
	}
	return false
}

// CleanupIdle drops buckets untouched for longer than idle, bounding
// memory growth from senders who stop reporting.
func (rl *RateLimiter) CleanupIdle(idle time.Duration, now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := now.Add(-idle)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}
