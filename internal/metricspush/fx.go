package metricspush

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(registerFinalPush),
)

// registerFinalPush pushes whatever the registry holds when the app stops.
// A failed push is logged and never fails shutdown.
func registerFinalPush(lc fx.Lifecycle, pusher Pusher, gatherer prometheus.Gatherer, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
			defer cancel()
			if err := pusher.Push(pushCtx, gatherer); err != nil {
				logger.Warn("metrics push failed", zap.Error(err))
				return nil
			}
			logger.Info("metrics pushed")
			return nil
		},
	})
}
