package catalog

import "math/rand"

// Channel is a weighted acquisition source.
type Channel struct {
	Name   string  `mapstructure:"name" yaml:"name"`
	Weight float64 `mapstructure:"weight" yaml:"weight"`
}

// DefaultChannels mirrors the marketing mix new users are attributed to.
var DefaultChannels = []Channel{
	{Name: "organic", Weight: 0.25},
	{Name: "paid_ads", Weight: 0.30},
	{Name: "referral", Weight: 0.25},
	{Name: "email_campaign", Weight: 0.10},
	{Name: "viral_share", Weight: 0.10},
}

// PickChannel draws one channel proportionally to its weight. Weights do not
// need to sum to one.
func PickChannel(rng *rand.Rand, channels []Channel) string {
	var total float64
	for _, ch := range channels {
		if ch.Weight > 0 {
			total += ch.Weight
		}
	}
	if total <= 0 {
		return "organic"
	}
	target := rng.Float64() * total
	var acc float64
	for _, ch := range channels {
		if ch.Weight <= 0 {
			continue
		}
		acc += ch.Weight
		if target < acc {
			return ch.Name
		}
	}
	return channels[len(channels)-1].Name
}
