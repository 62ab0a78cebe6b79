package simulation

import (
	"time"
)

// MonthSummary holds the counters of one simulated month.
type MonthSummary struct {
	Month    time.Time
	Index    int
	Scenario string

	New     int
	Total   int
	Active  int
	Churned int

	// Generated counts clean records per dataset, Written what reached the
	// sink after chaos.
	Generated map[string]int
	Written   map[string]int

	Duration time.Duration
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID string
	Era   string
	Seed  int64
	Start time.Time
	End   time.Time

	// CarriedOver is the number of users bootstrapped from the prior era.
	CarriedOver int
	Months      []MonthSummary
	Users       int

	Started  time.Time
	Finished time.Time
}

// Written totals the records written per dataset across months.
func (s Summary) Written() map[string]int {
	out := make(map[string]int)
	for _, m := range s.Months {
		for dataset, n := range m.Written {
			out[dataset] += n
		}
	}
	return out
}

// Final is the last month's counters, or the zero value when no month ran.
func (s Summary) Final() MonthSummary {
	if len(s.Months) == 0 {
		return MonthSummary{}
	}
	return s.Months[len(s.Months)-1]
}
