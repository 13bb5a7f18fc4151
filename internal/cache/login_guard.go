package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginGuard counts failed logins per identifier in Redis and locks the
// identifier once MaxFailures is reached inside Window.
type LoginGuard struct {
	client      *redis.Client
	MaxFailures int64
	Window      time.Duration
}

func NewLoginGuard(client *redis.Client, maxFailures int64, window time.Duration) *LoginGuard {
	return &LoginGuard{
		client:      client,
		MaxFailures: maxFailures,
		Window:      window,
	}
}

func guardKey(identifier string) string {
	return fmt.Sprintf("login:fail:%s", strings.ToLower(strings.TrimSpace(identifier)))
}

// Locked reports whether identifier has exhausted its failed attempts.
func (g *LoginGuard) Locked(ctx context.Context, identifier string) (bool, error) {
	if g == nil || g.client == nil {
		return false, nil
	}
	count, err := g.client.Get(ctx, guardKey(identifier)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count >= g.MaxFailures, nil
}

func (g *LoginGuard) RecordFailure(ctx context.Context, identifier string) error {
	if g == nil || g.client == nil {
		return nil
	}
	key := guardKey(identifier)
	pipe := g.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, g.Window)
	_, err := pipe.Exec(ctx)
	return err
}

func (g *LoginGuard) Reset(ctx context.Context, identifier string) error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Del(ctx, guardKey(identifier)).Err()
}
