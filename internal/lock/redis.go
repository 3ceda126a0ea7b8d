package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	Prefix     string
	TTL        time.Duration
	RetryDelay time.Duration
}

// RedisLocker is a Locker shared by every API instance. Each lock is a key
// set with NX and a TTL holding a random token; release deletes the key only
// if the token still matches.
type RedisLocker struct {
	client *redis.Client
	cfg    RedisConfig
	logger zerolog.Logger
}

func NewRedisLocker(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "slotbook:lock"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 25 * time.Millisecond
	}
	return &RedisLocker{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "redis-locker").Logger(),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.cfg.Prefix + ":" + key
	token := uuid.NewString()

	delay := l.cfg.RetryDelay
	for {
		ok, err := l.client.SetNX(ctx, name, token, l.cfg.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if delay < 200*time.Millisecond {
			delay *= 2
		}
	}

	return func() {
		// Release must run even when the request context is already done.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		n, err := releaseScript.Run(rctx, l.client, []string{name}, token).Int()
		switch {
		case err != nil && !errors.Is(err, redis.Nil):
			l.logger.Error().Err(err).Str("key", name).Msg("failed to release lock")
		case n == 0:
			l.logger.Warn().Str("key", name).Msg("lock expired before release")
		}
	}, nil
}
