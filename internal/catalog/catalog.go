package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Plans that exist outside the priced tier ladder.
const (
	PlanTrial    = "Trial"
	PlanCanceled = "Canceled"
	PlanExpired  = "Expired"
)

var (
	ErrEmptyCatalog       = errors.New("empty_catalog")
	ErrDuplicateTier      = errors.New("duplicate_tier")
	ErrInvalidTier        = errors.New("invalid_tier")
	ErrUnknownConvertTier = errors.New("unknown_convert_tier")
)

// Tier is one priced plan.
type Tier struct {
	Name       string
	Price      float64
	UsageLimit int
}

// Catalog is the plan ladder of one simulation era. Tiers are ordered from the
// base tier to the top tier; upgrades and downgrades move one step along it.
type Catalog struct {
	Name            string
	Tiers           []Tier
	ConvertTier     string
	TrialUsageLimit int
	// CarryOver remaps plans of a prior era onto this catalog.
	CarryOver map[string]string
}

// Validate checks the ladder is usable by the lifecycle engine.
func (c Catalog) Validate() error {
	if len(c.Tiers) == 0 {
		return ErrEmptyCatalog
	}
	seen := make(map[string]struct{}, len(c.Tiers))
	for _, tier := range c.Tiers {
		name := strings.TrimSpace(tier.Name)
		if name == "" || tier.Price < 0 || tier.UsageLimit < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidTier, tier.Name)
		}
		switch name {
		case PlanTrial, PlanCanceled, PlanExpired:
			return fmt.Errorf("%w: %q is reserved", ErrInvalidTier, name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateTier, name)
		}
		seen[name] = struct{}{}
	}
	if c.ConvertTier != "" {
		if _, ok := seen[c.ConvertTier]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownConvertTier, c.ConvertTier)
		}
	}
	return nil
}

// Base is the lowest tier. Reactivated users land here.
func (c Catalog) Base() string {
	if len(c.Tiers) == 0 {
		return ""
	}
	return c.Tiers[0].Name
}

// Mid is the tier trials convert to.
func (c Catalog) Mid() string {
	if c.ConvertTier != "" {
		return c.ConvertTier
	}
	if len(c.Tiers) == 0 {
		return ""
	}
	return c.Tiers[len(c.Tiers)/2].Name
}

// Tier looks up a priced tier by name.
func (c Catalog) Tier(plan string) (Tier, bool) {
	for _, tier := range c.Tiers {
		if tier.Name == plan {
			return tier, true
		}
	}
	return Tier{}, false
}

// IsTier reports whether plan is one of the priced tiers.
func (c Catalog) IsTier(plan string) bool {
	_, ok := c.Tier(plan)
	return ok
}

// Price returns the monthly price of plan, or 0 for anything off the ladder.
func (c Catalog) Price(plan string) float64 {
	tier, _ := c.Tier(plan)
	return tier.Price
}

// Billable reports whether plan is charged each month.
func (c Catalog) Billable(plan string) bool {
	return c.Price(plan) > 0
}

// UsageLimit returns the monthly usage cap of plan; unknown plans get 0.
func (c Catalog) UsageLimit(plan string) int {
	if plan == PlanTrial {
		return c.TrialUsageLimit
	}
	tier, _ := c.Tier(plan)
	return tier.UsageLimit
}

// UpgradeTarget returns the tier above plan.
func (c Catalog) UpgradeTarget(plan string) (string, bool) {
	for i, tier := range c.Tiers {
		if tier.Name == plan && i+1 < len(c.Tiers) {
			return c.Tiers[i+1].Name, true
		}
	}
	return "", false
}

// DowngradeTarget returns the tier below plan.
func (c Catalog) DowngradeTarget(plan string) (string, bool) {
	for i, tier := range c.Tiers {
		if tier.Name == plan && i > 0 {
			return c.Tiers[i-1].Name, true
		}
	}
	return "", false
}

// CarryOverPlan maps a prior-era plan onto this catalog. Churned and trial
// plans pass through; anything unmapped lands on the base tier.
func (c Catalog) CarryOverPlan(old string) string {
	old = strings.TrimSpace(old)
	if mapped, ok := c.CarryOver[old]; ok && mapped != "" {
		return mapped
	}
	switch old {
	case PlanTrial, PlanCanceled, PlanExpired:
		return old
	}
	if c.IsTier(old) {
		return old
	}
	return c.Base()
}
