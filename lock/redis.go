// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	DefaultLockTTL   = 30 * time.Second
	defaultRetryWait = 10 * time.Millisecond
)

// RedisLocker is a Locker shared between processes. Locks expire after TTL
// so a crashed holder cannot wedge a key.
type RedisLocker struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
}

// NewRedisLocker parses a redis:// URL and verifies the connection.
func NewRedisLocker(ctx context.Context, redisURL string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisLocker{
		client:    client,
		prefix:    "crowdlist:lock:",
		ttl:       DefaultLockTTL,
		retryWait: defaultRetryWait,
	}, nil
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock error: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryWait):
		}
	}

	return func() {
		// Release must run even when the caller's context is already done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
			slog.Warn("failed to release redis lock", "key", key, "error", err)
		}
	}, nil
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}
