// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited means the identity exceeded its message budget for the
// current window.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter validates that an identity may submit another message.
type Limiter interface {
	Validate(ctx context.Context, identity string) error
}

// RedisLimiter is a fixed-window counter: INCR per identity, EXPIRE on the
// first hit of each window. A Redis failure lets the request through rather
// than taking messaging down with the limiter.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
	}
}

func (l *RedisLimiter) Validate(ctx context.Context, identity string) error {
	key := fmt.Sprintf("rate_limit:messages:%s", identity)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}

	if count == 1 {
		l.rdb.Expire(ctx, key, l.window)
	}

	if count > l.limit {
		return ErrRateLimited
	}
	return nil
}
