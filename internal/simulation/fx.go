package simulation

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lifecyclesim/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("simulation",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Settings  Settings
	Sink      Sink
	Loader    Loader                     `optional:"true"`
	Saver     SnapshotSaver              `optional:"true"`
	Metrics   *metrics.SimulationMetrics `optional:"true"`
	Node      *snowflake.Node            `optional:"true"`
	Progress  ProgressFunc               `optional:"true"`
	Observers []Observer                 `group:"observers"`
	Logger    *zap.Logger
}

// New builds the Runner from the app graph.
func New(p Params) (*Runner, error) {
	opts := []Option{
		WithLoader(p.Loader),
		WithSnapshotSaver(p.Saver),
		WithMetrics(p.Metrics),
		WithIDNode(p.Node),
		WithProgress(p.Progress),
	}
	for _, o := range p.Observers {
		opts = append(opts, WithObserver(o))
	}
	return NewRunner(p.Settings, p.Sink, p.Logger, opts...)
}
