// Package throttle counts failed logins per account in Redis.
package throttle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"

	"docportal/internal/config"
)

const keyPrefix = "docportal:login:failures:"

// NewRedisClient returns a connected Redis client.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Login locks an account key out after maxFailures failed attempts until
// window has passed without another failure.
type Login struct {
	client      redis.Cmdable
	maxFailures int
	window      time.Duration
}

// NewLogin creates a login throttle. maxFailures <= 0 disables it.
func NewLogin(client redis.Cmdable, maxFailures int, window time.Duration) *Login {
	return &Login{client: client, maxFailures: maxFailures, window: window}
}

// Keys are hashed so account emails are not stored in Redis.
func key(account string) string {
	sum := blake3.Sum256([]byte(account))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

func (l *Login) Allow(ctx context.Context, account string) (bool, error) {
	if l.maxFailures <= 0 {
		return true, nil
	}
	n, err := l.client.Get(ctx, key(account)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return true, fmt.Errorf("redis get failures: %w", err)
	}
	return n < l.maxFailures, nil
}

func (l *Login) RecordFailure(ctx context.Context, account string) error {
	if l.maxFailures <= 0 {
		return nil
	}
	k := key(account)
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record failure: %w", err)
	}
	return nil
}

func (l *Login) Reset(ctx context.Context, account string) error {
	if l.maxFailures <= 0 {
		return nil
	}
	if err := l.client.Del(ctx, key(account)).Err(); err != nil {
		return fmt.Errorf("redis reset failures: %w", err)
	}
	return nil
}
