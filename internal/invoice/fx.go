package invoice

import (
	"context"
	"time"

	"github.com/smallbiznis/billingportal/internal/invoice/download"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	pruneEvery     = 5 * time.Minute
	keepFailuresOf = 30 * time.Minute
)

var Module = fx.Module("invoice",
	fx.Provide(download.NewRegistry),
	fx.Invoke(registerPruner),
)

// registerPruner forgets per-user download state nobody is polling anymore.
func registerPruner(lc fx.Lifecycle, reg *download.Registry, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(pruneEvery)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if n := reg.Prune(keepFailuresOf); n > 0 {
							log.Debug("download trackers pruned", zap.Int("users", n))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
