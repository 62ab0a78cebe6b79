package catalog

import (
	"errors"
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCatalog() Catalog {
	return Catalog{
		Name: "y2",
		Tiers: []Tier{
			{Name: "Starter", Price: 0, UsageLimit: 10},
			{Name: "Growth", Price: 25, UsageLimit: 100},
			{Name: "Enterprise", Price: 80, UsageLimit: 300},
		},
		TrialUsageLimit: 50,
		CarryOver: map[string]string{
			"Free":     "Starter",
			"Pro":      "Growth",
			"Pro Plus": "Growth",
			"Business": "Enterprise",
		},
	}
}

func TestAdjacency(t *testing.T) {
	c := testCatalog()

	up, ok := c.UpgradeTarget("Starter")
	assert.True(t, ok)
	assert.Equal(t, "Growth", up)

	_, ok = c.UpgradeTarget("Enterprise")
	assert.False(t, ok)

	down, ok := c.DowngradeTarget("Enterprise")
	assert.True(t, ok)
	assert.Equal(t, "Growth", down)

	_, ok = c.DowngradeTarget("Starter")
	assert.False(t, ok)

	_, ok = c.UpgradeTarget(PlanTrial)
	assert.False(t, ok)
}

func TestTierLookups(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, "Starter", c.Base())
	assert.Equal(t, "Growth", c.Mid())
	assert.False(t, c.Billable("Starter"))
	assert.True(t, c.Billable("Growth"))
	assert.Equal(t, 80.0, c.Price("Enterprise"))
	assert.Equal(t, 0.0, c.Price("Unknown"))
	assert.Equal(t, 50, c.UsageLimit(PlanTrial))
	assert.Equal(t, 0, c.UsageLimit("Unknown"))
	assert.Equal(t, 0, c.UsageLimit(PlanCanceled))
}

func TestCarryOverPlan(t *testing.T) {
	c := testCatalog()

	cases := map[string]string{
		"Free":       "Starter",
		"Pro":        "Growth",
		"Pro Plus":   "Growth",
		"Business":   "Enterprise",
		PlanTrial:    PlanTrial,
		PlanExpired:  PlanExpired,
		PlanCanceled: PlanCanceled,
		"Growth":     "Growth",
		"Legacy":     "Starter",
	}
	for in, want := range cases {
		if got := c.CarryOverPlan(in); got != want {
			t.Fatalf("CarryOverPlan(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, testCatalog().Validate())
	assert.True(t, errors.Is(Catalog{}.Validate(), ErrEmptyCatalog))

	dup := testCatalog()
	dup.Tiers = append(dup.Tiers, Tier{Name: "Growth", Price: 1})
	assert.True(t, errors.Is(dup.Validate(), ErrDuplicateTier))

	reserved := testCatalog()
	reserved.Tiers[0].Name = PlanTrial
	assert.True(t, errors.Is(reserved.Validate(), ErrInvalidTier))

	convert := testCatalog()
	convert.ConvertTier = "Platinum"
	assert.True(t, errors.Is(convert.Validate(), ErrUnknownConvertTier))
}

func TestPickChannelFollowsWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	const draws = 20000
	for i := 0; i < draws; i++ {
		counts[PickChannel(rng, DefaultChannels)]++
	}
	assert.InDelta(t, 0.30, float64(counts["paid_ads"])/draws, 0.02)
	assert.InDelta(t, 0.10, float64(counts["viral_share"])/draws, 0.02)
	assert.Equal(t, "organic", PickChannel(rng, nil))
}

func TestNewPersona(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	emailPattern := regexp.MustCompile(`^[a-z0-9.]+_abcdef12@[a-z.-]+$`)

	for _, country := range []string{"US", "DE", "BR", "JP", "XX"} {
		p := NewPersona(rng, country, "abcdef12-3456-7890")
		if p.Name == "" {
			t.Fatalf("expected name for %s", country)
		}
		if !emailPattern.MatchString(p.Email) {
			t.Fatalf("unexpected email %q for %s", p.Email, country)
		}
	}
}
