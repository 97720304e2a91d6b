package session

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billingportal/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("auth.session",
	fx.Provide(NewStore),
	fx.Provide(NewManager),
)

type StoreParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Redis     *redis.Client `optional:"true"`
	Clock     clock.Clock
	Log       *zap.Logger
}

// NewStore picks the redis store when a client is configured.
func NewStore(p StoreParams) Store {
	if p.Redis != nil {
		p.Log.Info("session store", zap.String("backend", "redis"))
		return NewRedisStore(p.Redis, p.Clock)
	}
	p.Log.Info("session store", zap.String("backend", "memory"))
	store := NewMemoryStore(p.Clock)
	startSweeper(p.Lifecycle, store, p.Log)
	return store
}

const sweepInterval = 10 * time.Minute

func startSweeper(lc fx.Lifecycle, store *MemoryStore, log *zap.Logger) {
	if lc == nil {
		return
	}
	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(sweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						if n := store.Sweep(); n > 0 {
							log.Debug("expired sessions removed", zap.Int("count", n))
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
