package config

import (
	"strings"

	"github.com/smallbiznis/lifecyclesim/internal/simulation"
	"go.uber.org/fx"
)

// Overrides carries command-line choices layered over the environment and
// simulation.yml. The CLI supplies it to the app.
type Overrides struct {
	ConfigPath  string
	Era         string
	Seed        int64
	NoCarryOver bool
	OutputDir   string
	Sinks       []string
}

var Module = fx.Module("config",
	fx.Provide(
		NewConfig,
		NewSimulationConfig,
		NewSettings,
	),
)

// NewConfig loads the process configuration and applies o.
func NewConfig(o Overrides) Config {
	cfg := Load()
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
	if len(o.Sinks) > 0 {
		cfg.Sinks = parseList(strings.Join(o.Sinks, ","))
	}
	return cfg
}

// NewSimulationConfig loads the era configuration and applies o.
func NewSimulationConfig(o Overrides) (SimulationConfig, error) {
	cfg, err := LoadSimulation(o.ConfigPath, o.Era)
	if err != nil {
		return SimulationConfig{}, err
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}
	if o.NoCarryOver {
		cfg.CarryOver = false
	}
	return cfg, nil
}

func NewSettings(cfg SimulationConfig) (simulation.Settings, error) {
	return cfg.Build()
}
