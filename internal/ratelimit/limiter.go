// Package ratelimit provides per-key token bucket rate limiting for MCP tools.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key, all sharing the configured
// rate and burst. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
	nowFunc func() time.Time // injectable clock for testing
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// Every bucket starts full.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		nowFunc: time.Now,
	}
}

// PerMinute is a convenience for limits expressed as calls per minute.
func PerMinute(n int, burst int) *Limiter {
	return NewLimiter(float64(n)/60.0, burst)
}

// Burst returns the bucket size.
func (l *Limiter) Burst() int { return l.burst }

// Rate returns the refill rate in tokens per second.
func (l *Limiter) Rate() float64 { return float64(l.rate) }

// Allow reports whether a request for key may proceed, consuming a token
// when it does.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	now := l.nowFunc()
	l.mu.Unlock()

	return b.AllowN(now, 1)
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default set of per-tool rate limiters.
// Queries are cheap and generous; anything touching disk is tight.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"protomech_influences":   PerMinute(120, 20),
		"protomech_rank_layer":   PerMinute(60, 10),
		"protomech_align":        PerMinute(30, 5),
		"protomech_add_feature":  PerMinute(60, 10),
		"protomech_remove_nodes": PerMinute(60, 10),
		"protomech_circuit":      PerMinute(30, 5),
		"protomech_save":         PerMinute(10, 2),
		"protomech_restore":      PerMinute(10, 2),
		"protomech_export":       PerMinute(5, 2),
	}
}

// CheckLimit checks the rate limit for a given tool name.
// Returns nil if allowed, or an error if rate limited.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil // No limiter configured = no limit
	}

	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}

	return nil
}
