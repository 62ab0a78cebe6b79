package config

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/lifecyclesim/internal/calendar"
	"github.com/smallbiznis/lifecyclesim/internal/catalog"
	"github.com/smallbiznis/lifecyclesim/internal/chaos"
	"github.com/smallbiznis/lifecyclesim/internal/event"
)

// Era preset names.
const (
	EraY1 = "y1"
	EraY2 = "y2"
)

// Preset returns the built-in configuration of era. An empty name selects y1.
func Preset(era string) (SimulationConfig, error) {
	switch strings.ToLower(strings.TrimSpace(era)) {
	case "", EraY1:
		return PresetY1(), nil
	case EraY2:
		return PresetY2(), nil
	default:
		return SimulationConfig{}, fmt.Errorf("%w: %q", ErrUnknownEra, era)
	}
}

func defaultProbabilities() ProbabilityConfig {
	return ProbabilityConfig{
		TrialConversion: 0.4,
		Churn:           0.05,
		Upgrade:         0.10,
		Downgrade:       0.05,
		PaymentFailure:  0.05,
		Reactivation:    0.08,
	}
}

func defaultGeography() []calendar.CountryZone {
	return append([]calendar.CountryZone(nil), calendar.DefaultCountryZones...)
}

// PresetY1 is the first era: Free/Pro/Business with a yearly chaos calendar
// of one rename, one schema addition, payment duplicates and a type change.
func PresetY1() SimulationConfig {
	return SimulationConfig{
		Era:          EraY1,
		StartMonth:   "2024-01",
		EndMonth:     "2024-12",
		Seed:         42,
		InitialUsers: 500,
		Growth:       GrowthConfig{Min: 50, Max: 100},
		Catalog: CatalogConfig{
			Name: EraY1,
			Tiers: []TierConfig{
				{Name: "Free", Price: 0, UsageLimit: 10},
				{Name: "Pro", Price: 15, UsageLimit: 100},
				{Name: "Business", Price: 50, UsageLimit: 300},
			},
			ConvertTier:     "Pro",
			TrialUsageLimit: 50,
		},
		Probabilities: defaultProbabilities(),
		Geography:     defaultGeography(),
		Channels: []catalog.Channel{
			{Name: "organic", Weight: 0.35},
			{Name: "paid_ads", Weight: 0.40},
			{Name: "referral", Weight: 0.15},
			{Name: "email_campaign", Weight: 0.10},
		},
		Chaos: ChaosConfig{
			LateArrivalRate: 0.03,
			Scenarios: []ScenarioConfig{
				{Month: 6, Name: "rename_plan", Steps: []StepConfig{
					{Kind: chaos.StepRename, From: "Pro", To: "Pro Plus"},
				}},
				{Month: 8, Name: "add_column", Steps: []StepConfig{
					{Kind: chaos.StepAddFields, Fields: map[string]any{
						"ingestion_source": "simulator_v2",
						"promo_code":       "Q3_LAUNCH",
					}},
				}},
				{Month: 10, Name: "duplicate_payments", Steps: []StepConfig{
					{Kind: chaos.StepDuplicate, Rate: 0.02, Datasets: []string{event.DatasetPayments}},
				}},
				{Month: 12, Name: "datatype_change", Steps: []StepConfig{
					{Kind: chaos.StepCoerceString, Field: event.FieldAmountUSD, Datasets: []string{event.DatasetPayments}},
				}},
			},
		},
	}
}

// PresetY2 is the second era. It renames the ladder to Starter/Growth/Enterprise,
// carries the Y1 population over and layers a messier chaos calendar on a
// growth curve that goes viral in month 10.
func PresetY2() SimulationConfig {
	return SimulationConfig{
		Era:          EraY2,
		StartMonth:   "2025-01",
		EndMonth:     "2025-12",
		Seed:         84,
		InitialUsers: 1339,
		Growth:       GrowthConfig{Min: 50, Max: 100},
		GrowthByMonth: map[string]GrowthConfig{
			"1":  {Min: 50, Max: 100},
			"2":  {Min: 50, Max: 100},
			"3":  {Min: 50, Max: 100},
			"4":  {Min: 60, Max: 110},
			"5":  {Min: 60, Max: 110},
			"6":  {Min: 70, Max: 130},
			"7":  {Min: 100, Max: 200},
			"8":  {Min: 150, Max: 300},
			"9":  {Min: 200, Max: 400},
			"10": {Min: 800, Max: 1500},
			"11": {Min: 600, Max: 1200},
			"12": {Min: 400, Max: 900},
		},
		CarryOver: true,
		Catalog: CatalogConfig{
			Name: EraY2,
			Tiers: []TierConfig{
				{Name: "Starter", Price: 0, UsageLimit: 10},
				{Name: "Growth", Price: 25, UsageLimit: 100},
				{Name: "Enterprise", Price: 80, UsageLimit: 300},
			},
			ConvertTier:     "Growth",
			TrialUsageLimit: 50,
			CarryOver:       y1ToY2(),
		},
		Probabilities: defaultProbabilities(),
		Geography:     defaultGeography(),
		Channels:      append([]catalog.Channel(nil), catalog.DefaultChannels...),
		Chaos: ChaosConfig{
			LateArrivalRate: 0.03,
			Scenarios: []ScenarioConfig{
				{Month: 3, Name: "plan_migration", Steps: []StepConfig{
					{Kind: chaos.StepPlanMigration, DirtyRate: 0.30, StaleRate: 0.25},
				}},
				{Month: 8, Name: "referral_noise", Steps: []StepConfig{
					{Kind: chaos.StepReferralNoise, Rate: 0.40},
				}},
				{Month: 10, Name: "viral_spike", Steps: []StepConfig{
					{Kind: chaos.StepTimestampCollision, Rate: 0.12},
					{Kind: chaos.StepNullSpike, Field: event.FieldPlan, Rate: 0.15},
					{Kind: chaos.StepReferralNoise, Rate: 0.50},
				}},
				{Month: 12, Name: "compounding", Steps: []StepConfig{
					{Kind: chaos.StepNullSpike, Field: event.FieldPlan, Rate: 0.10},
					{Kind: chaos.StepReferralNoise, Rate: 0.55},
					{Kind: chaos.StepDuplicate, Rate: 0.04, Datasets: []string{event.DatasetPayments}},
				}},
			},
			Sticky: &StickyConfig{
				FromMonth: 3,
				Steps: []StepConfig{
					{Kind: chaos.StepPlanMigration, DirtyRate: 0.20, StaleRate: 0.20},
				},
			},
			Migration: MigrationConfig{
				Mapping: y1ToY2(),
				DirtyVariants: []string{
					"growth", "GROWTH", "Growht", "growth_plan", "Growth ",
					"Pro", "starter", "Enterprise_v2",
				},
			},
		},
	}
}

func y1ToY2() []PlanMapping {
	return []PlanMapping{
		{From: "Free", To: "Starter"},
		{From: "Pro", To: "Growth"},
		{From: "Pro Plus", To: "Growth"},
		{From: "Business", To: "Enterprise"},
	}
}
