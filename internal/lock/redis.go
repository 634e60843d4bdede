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
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a Locker shared by every process pointed at the same server.
// The token written with SET NX guarantees only the holder can release.
type Redis struct {
	Client redis.UniversalClient
	TTL    time.Duration
	Wait   time.Duration
	Retry  time.Duration
	Prefix string
	Logger zerolog.Logger
}

func NewRedis(url string, ttl, wait time.Duration, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{
		Client: redis.NewClient(opts),
		TTL:    ttl,
		Wait:   wait,
		Prefix: "complaints:lock:",
		Logger: logger,
	}, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := r.Retry
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	if r.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Wait)
		defer cancel()
	}

	fullKey := r.Prefix + key
	token := uuid.NewString()
	for {
		ok, err := r.Client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("acquire %s: %w", fullKey, err)
		}
		if ok {
			return r.releaser(fullKey, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(retry):
		}
	}
}

func (r *Redis) releaser(key, token string) func() {
	return func() {
		// The caller's context may already be done; release on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, r.Client, []string{key}, token).Int()
		if err != nil {
			r.Logger.Error().Err(err).Str("key", key).Msg("lock release failed")
			return
		}
		if n == 0 {
			r.Logger.Warn().Str("key", key).Msg("lock expired before release")
		}
	}
}

func (r *Redis) Close() error {
	return r.Client.Close()
}
