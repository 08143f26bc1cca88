// Package ratelimit implements fixed-window rate limiting backed by Redis.
// Counters live under rate_limit:{key}:{windowStart} and expire shortly
// after the window closes, so no explicit cleanup is needed.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule describes a rate limit: at most Max requests per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// Predefined rules for the API surface
var (
	RuleAPICalls           = Rule{Max: 60, Window: time.Minute}
	RuleEmailSend          = Rule{Max: 10, Window: time.Hour}
	RuleLogin              = Rule{Max: 5, Window: 15 * time.Minute}
	RuleAttachmentDownload = Rule{Max: 20, Window: time.Minute}
)

// Result carries the outcome of a rate limit check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// Store abstracts the counter backend
type Store interface {
	// Increment bumps the counter at key, sets ttl on first write, and
	// returns the new count.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore implements Store on a Redis client
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed counter store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Increment atomically increments the counter and sets the TTL on first use
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return incr.Val(), nil
}

// Limiter checks requests against fixed-window rules
type Limiter struct {
	store Store
	now   func() time.Time
}

// NewLimiter creates a limiter on the given store
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Check records one request under key and reports whether it is allowed.
// The window boundary is the current time truncated to the rule window, so
// all callers within the same window share one counter.
func (l *Limiter) Check(ctx context.Context, key string, rule Rule) (*Result, error) {
	now := l.now()
	windowStart := now.Truncate(rule.Window)
	counterKey := fmt.Sprintf("rate_limit:%s:%d", key, windowStart.UnixMilli())

	// Counters outlive the window by a grace period so late readers still
	// see them.
	ttl := rule.Window + 10*time.Second

	count, err := l.store.Increment(ctx, counterKey, ttl)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Limit:     rule.Max,
		ResetTime: windowStart.Add(rule.Window),
	}

	if count > int64(rule.Max) {
		result.Allowed = false
		result.Remaining = 0
		return result, nil
	}

	result.Allowed = true
	result.Remaining = rule.Max - int(count)
	return result, nil
}
