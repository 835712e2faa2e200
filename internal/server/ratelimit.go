package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a per-organization, per-second counter in redis. It is
// advisory and fails open: no redis, a redis error, or a zero limit all
// allow the request.
type RateLimiter struct {
	redis     *redis.Client
	perSecond int
}

func NewRateLimiter(rdb *redis.Client, perSecond int) *RateLimiter {
	return &RateLimiter{redis: rdb, perSecond: perSecond}
}

func (l *RateLimiter) Allow(ctx context.Context, orgID string) bool {
	if l.redis == nil || l.perSecond <= 0 {
		return true
	}
	key := "ratelimit:" + orgID
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.redis.Expire(ctx, key, time.Second)
	}
	return count <= int64(l.perSecond)
}
