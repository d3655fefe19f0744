package rpcgateway

import (
	"sync"
	"time"

	"github.com/industrial-robotics/robotcore/pkg/protocol"
)

// tokenBucket is a refill-by-elapsed-time token bucket.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(hz int) *tokenBucket {
	rate := float64(hz)
	if rate < 1 {
		rate = 1
	}
	return &tokenBucket{
		tokens:     rate,
		maxTokens:  rate,
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// wireRateLimiter enforces per-endpoint rate limits on the
// position_command and velocity_command wires. The gateway serves many
// concurrent endpoints against one controller, so a single
// process-wide bucket per message type would let one noisy endpoint
// exhaust the budget for every other endpoint's wire. Buckets are
// therefore keyed per (endpoint, message type) and created lazily on
// first use.
type wireRateLimiter struct {
	posHz int
	velHz int

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

func newWireRateLimiter(posHz, velHz int) *wireRateLimiter {
	return &wireRateLimiter{
		posHz:   posHz,
		velHz:   velHz,
		buckets: make(map[string]*tokenBucket),
	}
}

// Allow reports whether a wire frame of msgType from endpointID may
// proceed, consuming a token from its bucket if so.
func (rl *wireRateLimiter) Allow(endpointID string, msgType protocol.MessageType) bool {
	hz, ok := rl.hzFor(msgType)
	if !ok {
		return true
	}

	key := endpointID + "|" + string(msgType)

	rl.mu.Lock()
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = newTokenBucket(hz)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.allow()
}

func (rl *wireRateLimiter) hzFor(msgType protocol.MessageType) (int, bool) {
	switch msgType {
	case protocol.TypePositionCommand:
		return rl.posHz, true
	case protocol.TypeVelocityCommand:
		return rl.velHz, true
	default:
		return 0, false
	}
}

// Forget drops every bucket belonging to endpointID, e.g. once its
// wire session ends, so a gateway serving many short-lived endpoints
// doesn't accumulate buckets for connections that will never return.
func (rl *wireRateLimiter) Forget(endpointID string) {
	prefix := endpointID + "|"

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key := range rl.buckets {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(rl.buckets, key)
		}
	}
}
