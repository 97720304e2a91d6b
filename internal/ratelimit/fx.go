package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideTokenBucket),
	fx.Provide(provideLocker),
	fx.Provide(NewLoginLimiter),
	fx.Invoke(registerSweeper),
)

type redisParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

func provideTokenBucket(p redisParams) *TokenBucket {
	return NewTokenBucket(p.Redis)
}

func provideLocker(p redisParams) Locker {
	if p.Redis != nil {
		return NewRedisLocker(p.Redis)
	}
	return NewMemoryLocker()
}

func registerSweeper(lc fx.Lifecycle, limiter *LoginLimiter, log *zap.Logger) {
	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(10 * time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case now := <-ticker.C:
						if n := limiter.Sweep(now); n > 0 {
							log.Debug("idle login limiters removed", zap.Int("count", n))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			close(stop)
			return nil
		},
	})
}
