package sink

import (
	"context"
	"fmt"

	"github.com/smallbiznis/lifecyclesim/internal/clock"
	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/observability/metrics"
	"github.com/smallbiznis/lifecyclesim/internal/sink/filesink"
	"github.com/smallbiznis/lifecyclesim/internal/sink/redissink"
	"github.com/smallbiznis/lifecyclesim/internal/sink/sqlsink"
	"github.com/smallbiznis/lifecyclesim/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sink names accepted in SINKS.
const (
	KindFile  = "file"
	KindSQL   = "sql"
	KindRedis = "redis"
)

var Module = fx.Module("sink",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	DB        *db.Lazy
	Metrics   *metrics.Metrics `optional:"true"`
	Logger    *zap.Logger
}

// New builds the configured sinks in SINKS order behind one fan-out.
func New(p Params) (Sink, error) {
	if len(p.Config.Sinks) == 0 {
		return nil, ErrNoSinks
	}

	out := make(Multi, 0, len(p.Config.Sinks))
	for _, kind := range p.Config.Sinks {
		var s Sink
		switch kind {
		case KindFile:
			fs, err := filesink.New(p.Config.OutputDir, p.Logger)
			if err != nil {
				return nil, err
			}
			s = fs
		case KindSQL:
			s = sqlsink.New(p.DB, clock.Real(), p.Logger)
		case KindRedis:
			rs, client, err := redissink.New(redissink.Options{
				Addr:     p.Config.RedisAddr,
				Password: p.Config.RedisPassword,
				DB:       p.Config.RedisDB,
				Prefix:   p.Config.RedisPrefix,
			}, p.Logger)
			if err != nil {
				return nil, err
			}
			p.Lifecycle.Append(fx.Hook{
				OnStop: func(context.Context) error {
					return client.Close()
				},
			})
			s = rs
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownSink, kind)
		}
		out = append(out, Instrument(kind, s, p.Metrics))
	}
	return out, nil
}
