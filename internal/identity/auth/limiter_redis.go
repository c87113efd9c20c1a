// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter throttles authentication attempts per key.
type LoginLimiter interface {
	// Allow records one attempt for the key and reports whether it is
	// within the window threshold.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLoginLimiter implements [LoginLimiter] on a shared Redis counter, so
// the threshold holds across replicas.
//
// The counter uses INCR with an expiry set on first increment, which gives
// atomic increment-and-compare semantics without a lock.
type RedisLoginLimiter struct {
	client *redis.Client
	window time.Duration
	max    int
}

// NewRedisLoginLimiter constructs a limiter admitting max attempts per key
// per window.
func NewRedisLoginLimiter(client *redis.Client, window time.Duration, max int) *RedisLoginLimiter {
	return &RedisLoginLimiter{client: client, window: window, max: max}
}

func (limiter *RedisLoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "login_attempts:" + key

	count, err := limiter.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis_login_limiter_incr_failed: %w", err)
	}
	if count == 1 {
		if err := limiter.client.Expire(ctx, redisKey, limiter.window).Err(); err != nil {
			return false, fmt.Errorf("redis_login_limiter_expire_failed: %w", err)
		}
	}

	return count <= int64(limiter.max), nil
}
