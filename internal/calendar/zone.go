package calendar

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
)

// CountryZone pairs a country code with the IANA zone its users live in.
type CountryZone struct {
	Country  string `mapstructure:"country" yaml:"country"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// DefaultCountryZones is the fixed geography users are drawn from.
var DefaultCountryZones = []CountryZone{
	{Country: "US", Timezone: "America/New_York"},
	{Country: "UK", Timezone: "Europe/London"},
	{Country: "DE", Timezone: "Europe/Berlin"},
	{Country: "IN", Timezone: "Asia/Kolkata"},
	{Country: "JP", Timezone: "Asia/Tokyo"},
	{Country: "BR", Timezone: "America/Sao_Paulo"},
}

// AssignCountryTimezone picks one entry of table uniformly at random.
func AssignCountryTimezone(rng *rand.Rand, table []CountryZone) CountryZone {
	if len(table) == 0 {
		return CountryZone{Timezone: "UTC"}
	}
	return table[rng.Intn(len(table))]
}

// Zones converts wall-clock times to UTC and caches loaded locations.
type Zones struct {
	log *zap.Logger

	mu    sync.Mutex
	cache map[string]*time.Location
}

// NewZones returns a converter that reports fallbacks on log.
func NewZones(log *zap.Logger) *Zones {
	if log == nil {
		log = zap.NewNop()
	}
	return &Zones{
		log:   log.Named("calendar"),
		cache: map[string]*time.Location{},
	}
}

// LocalToUTC interprets local as a wall-clock time in tz and returns the UTC instant.
//
// Wall times repeated by a fall-back transition resolve to the later offset.
// Wall times skipped by a spring-forward transition move to the transition
// instant. An unknown zone is reported and the wall time is returned as UTC.
func (z *Zones) LocalToUTC(local time.Time, tz string) time.Time {
	naive := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)

	loc, err := z.location(tz)
	if err != nil {
		z.log.Warn("calendar.tz.fallback",
			zap.String("timezone", tz),
			zap.Time("local", naive),
			zap.Error(err),
		)
		return naive
	}
	return resolve(naive, loc)
}

func (z *Zones) location(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	z.mu.Lock()
	defer z.mu.Unlock()
	if loc, ok := z.cache[tz]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	z.cache[tz] = loc
	return loc, nil
}

func resolve(naive time.Time, loc *time.Location) time.Time {
	before := offsetAt(naive.Add(-36*time.Hour), loc)
	after := offsetAt(naive.Add(36*time.Hour), loc)

	var matches []time.Time
	for _, off := range distinct(before, after) {
		candidate := naive.Add(-off)
		if sameWallClock(candidate.In(loc), naive) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0]
	case 2:
		return naive.Add(-after)
	}

	lo := naive.Add(-after)
	hi := naive.Add(-before)
	if hi.Before(lo) {
		lo, hi = hi, lo
	}
	return firstWithOffset(lo, hi, after, loc)
}

// firstWithOffset binary searches [lo, hi] at second resolution for the first
// instant whose zone offset equals off.
func firstWithOffset(lo, hi time.Time, off time.Duration, loc *time.Location) time.Time {
	span := int(hi.Sub(lo) / time.Second)
	i := sort.Search(span+1, func(i int) bool {
		return offsetAt(lo.Add(time.Duration(i)*time.Second), loc) == off
	})
	return lo.Add(time.Duration(i) * time.Second)
}

func offsetAt(instant time.Time, loc *time.Location) time.Duration {
	_, seconds := instant.In(loc).Zone()
	return time.Duration(seconds) * time.Second
}

func distinct(a, b time.Duration) []time.Duration {
	if a == b {
		return []time.Duration{a}
	}
	return []time.Duration{a, b}
}

func sameWallClock(t, naive time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := naive.Date()
	h1, mi1, s1 := t.Clock()
	h2, mi2, s2 := naive.Clock()
	return y1 == y2 && m1 == m2 && d1 == d2 && h1 == h2 && mi1 == mi2 && s1 == s2
}
