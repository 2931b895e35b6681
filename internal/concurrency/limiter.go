package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// SlotLimiter bounds concurrent call placements for a campaign. Predictive
// mode acquires one slot per batch member before placing the call.
type SlotLimiter interface {
	Acquire(ctx context.Context, campaignID uuid.UUID, limit int) (bool, error)
	Release(ctx context.Context, campaignID uuid.UUID) error
}

// RedisLimiter coordinates placement slots across orchestrator instances
// using Redis counters with a TTL safety net.
type RedisLimiter struct {
	client       *redis.Client
	defaultLimit int
	ttl          time.Duration
}

// NewRedisLimiter constructs a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, defaultLimit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLimiter{client: client, defaultLimit: defaultLimit, ttl: ttl}
}

var acquireScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', key) or '0')
if current < limit then
  current = redis.call('INCR', key)
  if ttl > 0 then
    redis.call('PEXPIRE', key, ttl)
  end
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
local current = tonumber(redis.call('GET', key) or '0')
if current <= 0 then
  redis.call('DEL', key)
  return 0
end
return redis.call('DECR', key)
`)

// Acquire attempts to reserve a placement slot for the campaign.
func (l *RedisLimiter) Acquire(ctx context.Context, campaignID uuid.UUID, limit int) (bool, error) {
	if campaignID == uuid.Nil {
		return true, nil
	}
	if limit <= 0 {
		limit = l.defaultLimit
	}
	if limit <= 0 {
		return true, nil
	}

	res, err := acquireScript.Run(ctx, l.client, []string{l.key(campaignID)}, limit, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("slot acquire: %w", err)
	}
	return res == 1, nil
}

// Release frees a previously acquired slot.
func (l *RedisLimiter) Release(ctx context.Context, campaignID uuid.UUID) error {
	if campaignID == uuid.Nil {
		return nil
	}
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key(campaignID)}).Int(); err != nil {
		return fmt.Errorf("slot release: %w", err)
	}
	return nil
}

func (l *RedisLimiter) key(campaignID uuid.UUID) string {
	return fmt.Sprintf("powerdialer:campaign:%s:placing", campaignID.String())
}
