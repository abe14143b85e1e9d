// Package ratelimit 提供基于 Redis 的分布式限流
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limit 限流规则
type Limit struct {
	// 每个周期允许的请求数
	Rate int
	// 周期
	Period time.Duration
	// 突发容量
	Burst int
}

// Result 一次限流判定的结果
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// Limiter 限流判定接口
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// RedisLimiter 基于 redis_rate(GCRA) 的实现，多实例间共享配额
type RedisLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRedisLimiter 创建限流器
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{limiter: redis_rate.NewLimiter(client)}
}

// Allow 判定 key 是否允许通过
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	res, err := l.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  limit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
