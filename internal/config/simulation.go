package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/calendar"
	"github.com/smallbiznis/lifecyclesim/internal/catalog"
	"github.com/smallbiznis/lifecyclesim/internal/chaos"
	"github.com/smallbiznis/lifecyclesim/internal/lifecycle"
	"github.com/smallbiznis/lifecyclesim/internal/simulation"
	"github.com/spf13/viper"
)

const monthLayout = "2006-01"

var (
	ErrUnknownEra      = errors.New("unknown_era")
	ErrInvalidMonth    = errors.New("invalid_month")
	ErrInvalidScenario = errors.New("invalid_scenario")
)

// SimulationConfig is the run-static description of one era. It is read from
// simulation.yml and any section left out falls back to the era preset.
type SimulationConfig struct {
	Era           string                  `mapstructure:"era" yaml:"era"`
	StartMonth    string                  `mapstructure:"start_month" yaml:"start_month"`
	EndMonth      string                  `mapstructure:"end_month" yaml:"end_month"`
	Seed          int64                   `mapstructure:"seed" yaml:"seed"`
	InitialUsers  int                     `mapstructure:"initial_users" yaml:"initial_users"`
	Growth        GrowthConfig            `mapstructure:"growth" yaml:"growth"`
	GrowthByMonth map[string]GrowthConfig `mapstructure:"growth_by_month" yaml:"growth_by_month"`
	CarryOver     bool                    `mapstructure:"carry_over" yaml:"carry_over"`
	Catalog       CatalogConfig           `mapstructure:"catalog" yaml:"catalog"`
	Probabilities ProbabilityConfig       `mapstructure:"probabilities" yaml:"probabilities"`
	Geography     []calendar.CountryZone  `mapstructure:"geography" yaml:"geography"`
	Channels      []catalog.Channel       `mapstructure:"channels" yaml:"channels"`
	Chaos         ChaosConfig             `mapstructure:"chaos" yaml:"chaos"`
}

type GrowthConfig struct {
	Min int `mapstructure:"min" yaml:"min"`
	Max int `mapstructure:"max" yaml:"max"`
}

type TierConfig struct {
	Name       string  `mapstructure:"name" yaml:"name"`
	Price      float64 `mapstructure:"price" yaml:"price"`
	UsageLimit int     `mapstructure:"usage_limit" yaml:"usage_limit"`
}

// PlanMapping renames a plan. Plan names are kept as values because viper
// lowercases map keys.
type PlanMapping struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

type CatalogConfig struct {
	Name            string        `mapstructure:"name" yaml:"name"`
	Tiers           []TierConfig  `mapstructure:"tiers" yaml:"tiers"`
	ConvertTier     string        `mapstructure:"convert_tier" yaml:"convert_tier"`
	TrialUsageLimit int           `mapstructure:"trial_usage_limit" yaml:"trial_usage_limit"`
	CarryOver       []PlanMapping `mapstructure:"carry_over" yaml:"carry_over"`
}

type ProbabilityConfig struct {
	TrialConversion float64 `mapstructure:"trial_conversion" yaml:"trial_conversion"`
	Churn           float64 `mapstructure:"churn" yaml:"churn"`
	Upgrade         float64 `mapstructure:"upgrade" yaml:"upgrade"`
	Downgrade       float64 `mapstructure:"downgrade" yaml:"downgrade"`
	PaymentFailure  float64 `mapstructure:"payment_failure" yaml:"payment_failure"`
	Reactivation    float64 `mapstructure:"reactivation" yaml:"reactivation"`
}

type ChaosConfig struct {
	LateArrivalRate float64          `mapstructure:"late_arrival_rate" yaml:"late_arrival_rate"`
	Scenarios       []ScenarioConfig `mapstructure:"scenarios" yaml:"scenarios"`
	Sticky          *StickyConfig    `mapstructure:"sticky" yaml:"sticky,omitempty"`
	Migration       MigrationConfig  `mapstructure:"migration" yaml:"migration"`
}

type ScenarioConfig struct {
	Month int          `mapstructure:"month" yaml:"month"`
	Name  string       `mapstructure:"name" yaml:"name"`
	Steps []StepConfig `mapstructure:"steps" yaml:"steps"`
}

type StickyConfig struct {
	FromMonth int          `mapstructure:"from_month" yaml:"from_month"`
	Steps     []StepConfig `mapstructure:"steps" yaml:"steps"`
}

type MigrationConfig struct {
	Mapping       []PlanMapping `mapstructure:"mapping" yaml:"mapping"`
	DirtyVariants []string      `mapstructure:"dirty_variants" yaml:"dirty_variants"`
}

type StepConfig struct {
	Kind      string         `mapstructure:"kind" yaml:"kind"`
	Field     string         `mapstructure:"field" yaml:"field,omitempty"`
	From      string         `mapstructure:"from" yaml:"from,omitempty"`
	To        string         `mapstructure:"to" yaml:"to,omitempty"`
	Rate      float64        `mapstructure:"rate" yaml:"rate,omitempty"`
	DirtyRate float64        `mapstructure:"dirty_rate" yaml:"dirty_rate,omitempty"`
	StaleRate float64        `mapstructure:"stale_rate" yaml:"stale_rate,omitempty"`
	MaxShift  time.Duration  `mapstructure:"max_shift" yaml:"max_shift,omitempty"`
	Fields    map[string]any `mapstructure:"fields" yaml:"fields,omitempty"`
	Datasets  []string       `mapstructure:"datasets" yaml:"datasets,omitempty"`
}

// LoadSimulation reads simulation.yml from path, or from /etc/lifecyclesim and
// the working directory when path is empty. A missing file is not an error:
// the era preset is used as is. A non-empty era overrides the file's.
func LoadSimulation(path, era string) (SimulationConfig, error) {
	v := viper.New()
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err != nil {
			return SimulationConfig{}, fmt.Errorf("read simulation config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("simulation")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/lifecyclesim")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LIFECYCLESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"era", "seed", "start_month", "end_month", "initial_users", "carry_over"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return SimulationConfig{}, fmt.Errorf("read simulation config: %w", err)
		}
	}

	var cfg SimulationConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SimulationConfig{}, fmt.Errorf("decode simulation config: %w", err)
	}
	if strings.TrimSpace(era) != "" {
		cfg.Era = era
	}

	preset, err := Preset(cfg.Era)
	if err != nil {
		return SimulationConfig{}, err
	}
	cfg = cfg.withDefaults(preset, v.IsSet("carry_over"))
	if err := cfg.Validate(); err != nil {
		return SimulationConfig{}, err
	}
	return cfg, nil
}

func (c SimulationConfig) withDefaults(preset SimulationConfig, carryOverSet bool) SimulationConfig {
	c.Era = preset.Era
	if c.StartMonth == "" {
		c.StartMonth = preset.StartMonth
	}
	if c.EndMonth == "" {
		c.EndMonth = preset.EndMonth
	}
	if c.Seed == 0 {
		c.Seed = preset.Seed
	}
	if c.InitialUsers == 0 {
		c.InitialUsers = preset.InitialUsers
	}
	// A custom global range drops the preset's per-month curve.
	if c.GrowthByMonth == nil && c.Growth == (GrowthConfig{}) {
		c.GrowthByMonth = preset.GrowthByMonth
	}
	if c.Growth == (GrowthConfig{}) {
		c.Growth = preset.Growth
	}
	if !carryOverSet {
		c.CarryOver = preset.CarryOver
	}
	if len(c.Catalog.Tiers) == 0 {
		c.Catalog = preset.Catalog
	}
	if c.Probabilities == (ProbabilityConfig{}) {
		c.Probabilities = preset.Probabilities
	}
	if len(c.Geography) == 0 {
		c.Geography = preset.Geography
	}
	if len(c.Channels) == 0 {
		c.Channels = preset.Channels
	}
	if len(c.Chaos.Scenarios) == 0 && c.Chaos.Sticky == nil && c.Chaos.LateArrivalRate == 0 {
		c.Chaos = preset.Chaos
	}
	return c
}

// Validate checks the configuration converts into runnable settings.
func (c SimulationConfig) Validate() error {
	_, err := c.Build()
	return err
}

// Build converts the configuration into the settings the simulation runs on.
func (c SimulationConfig) Build() (simulation.Settings, error) {
	start, err := parseMonth(c.StartMonth)
	if err != nil {
		return simulation.Settings{}, err
	}
	end, err := parseMonth(c.EndMonth)
	if err != nil {
		return simulation.Settings{}, err
	}

	plan := simulation.Plan{
		Era:          c.Era,
		Start:        start,
		End:          end,
		Seed:         c.Seed,
		InitialUsers: c.InitialUsers,
		Growth:       simulation.GrowthRange{Min: c.Growth.Min, Max: c.Growth.Max},
		CarryOver:    c.CarryOver,
	}
	if len(c.GrowthByMonth) > 0 {
		plan.GrowthByMonth = make(map[int]simulation.GrowthRange, len(c.GrowthByMonth))
		for key, g := range c.GrowthByMonth {
			idx, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil || idx < 1 {
				return simulation.Settings{}, fmt.Errorf("%w: growth_by_month %q", ErrInvalidMonth, key)
			}
			plan.GrowthByMonth[idx] = simulation.GrowthRange{Min: g.Min, Max: g.Max}
		}
	}
	if err := plan.Validate(); err != nil {
		return simulation.Settings{}, err
	}

	cat := c.Catalog.build()
	if err := cat.Validate(); err != nil {
		return simulation.Settings{}, fmt.Errorf("catalog: %w", err)
	}

	probs := lifecycle.Probabilities(c.Probabilities)
	if err := probs.Validate(); err != nil {
		return simulation.Settings{}, err
	}

	schedule, err := c.Chaos.build(start)
	if err != nil {
		return simulation.Settings{}, err
	}

	return simulation.Settings{
		Plan: plan,
		Machine: lifecycle.Config{
			Catalog:       cat,
			Probabilities: probs,
			Geography:     c.Geography,
			Channels:      c.Channels,
		},
		Chaos: schedule,
	}, nil
}

func (c CatalogConfig) build() catalog.Catalog {
	cat := catalog.Catalog{
		Name:            c.Name,
		ConvertTier:     c.ConvertTier,
		TrialUsageLimit: c.TrialUsageLimit,
		Tiers:           make([]catalog.Tier, 0, len(c.Tiers)),
	}
	for _, t := range c.Tiers {
		cat.Tiers = append(cat.Tiers, catalog.Tier{Name: t.Name, Price: t.Price, UsageLimit: t.UsageLimit})
	}
	cat.CarryOver = mappingOf(c.CarryOver)
	return cat
}

func (c ChaosConfig) build(start time.Time) (chaos.Schedule, error) {
	s := chaos.Schedule{
		Start:           start,
		LateArrivalRate: c.LateArrivalRate,
		Scenarios:       make(map[int]chaos.Scenario, len(c.Scenarios)),
		Migration: chaos.Migration{
			Mapping:       mappingOf(c.Migration.Mapping),
			DirtyVariants: c.Migration.DirtyVariants,
		},
	}
	for _, sc := range c.Scenarios {
		if _, dup := s.Scenarios[sc.Month]; dup {
			return chaos.Schedule{}, fmt.Errorf("%w: two scenarios in month %d", ErrInvalidScenario, sc.Month)
		}
		s.Scenarios[sc.Month] = chaos.Scenario{Name: sc.Name, Steps: stepsOf(sc.Steps)}
	}
	if c.Sticky != nil {
		s.Sticky = &chaos.Sticky{FromMonth: c.Sticky.FromMonth, Steps: stepsOf(c.Sticky.Steps)}
	}
	if err := s.Validate(); err != nil {
		return chaos.Schedule{}, fmt.Errorf("chaos: %w", err)
	}
	return s, nil
}

func stepsOf(in []StepConfig) []chaos.Step {
	out := make([]chaos.Step, 0, len(in))
	for _, st := range in {
		out = append(out, chaos.Step(st))
	}
	return out
}

func mappingOf(in []PlanMapping) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for _, m := range in {
		out[m.From] = m.To
	}
	return out
}

func parseMonth(raw string) (time.Time, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, raw)
	}
	return t, nil
}
