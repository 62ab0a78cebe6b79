package report

import (
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/catalog"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/lifecycle"
)

// FailedPaymentThreshold is the length of a failed payment streak after which
// a user without a cancel is flagged.
const FailedPaymentThreshold = 3

// Checks are the data-quality counters of one written month.
type Checks struct {
	// LateArrivals counts records whose batch month differs from the month of
	// their local timestamp.
	LateArrivals int `yaml:"late_arrivals"`
	// FailedWithoutCancel counts users whose failed payment streak reached
	// FailedPaymentThreshold this month with no cancel event in the same month.
	FailedWithoutCancel int `yaml:"failed_without_cancel"`
	// OverUsageLimit counts users whose usage events exceed their plan limit.
	OverUsageLimit int `yaml:"over_usage_limit"`
}

func (c Checks) add(o Checks) Checks {
	return Checks{
		LateArrivals:        c.LateArrivals + o.LateArrivals,
		FailedWithoutCancel: c.FailedWithoutCancel + o.FailedWithoutCancel,
		OverUsageLimit:      c.OverUsageLimit + o.OverUsageLimit,
	}
}

// Validate computes the checks over the batches written for month alone.
// Failed payment streaks start from zero; Collector carries them across months.
func Validate(month time.Time, batches map[string]event.Batch, cat catalog.Catalog) Checks {
	return validate(batches, cat, newStreaks())
}

func validate(batches map[string]event.Batch, cat catalog.Catalog, streaks *streaks) Checks {
	var c Checks
	for dataset, batch := range batches {
		c.LateArrivals += lateArrivals(batch, event.LocalTimeField(dataset))
	}
	c.FailedWithoutCancel = streaks.observe(batches[event.DatasetPayments], batches[event.DatasetSubscriptions])
	c.OverUsageLimit = overUsageLimit(batches[event.DatasetProduct], cat)
	return c
}

func lateArrivals(batch event.Batch, localField string) int {
	n := 0
	for _, r := range batch {
		label, ok := r.String(event.FieldBatchMonth)
		if !ok {
			continue
		}
		ts, ok := r.Time(localField)
		if !ok {
			continue
		}
		if event.FormatBatchMonth(ts) != label {
			n++
		}
	}
	return n
}

// streaks tracks consecutive failed payments per user.
type streaks struct {
	failures map[string]int
}

func newStreaks() *streaks {
	return &streaks{failures: make(map[string]int)}
}

// observe folds one month of payments into the running streaks and returns
// how many users reached FailedPaymentThreshold without a cancel that month.
// Duplicated payment rows count once.
func (s *streaks) observe(payments, subscriptions event.Batch) int {
	canceled := make(map[string]struct{})
	for _, r := range subscriptions {
		if t, _ := r.String(event.FieldEventType); t != lifecycle.EventCancel {
			continue
		}
		if id, ok := r.String(event.FieldUserID); ok {
			canceled[id] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	n := 0
	for _, r := range payments {
		id, ok := r.String(event.FieldUserID)
		if !ok {
			continue
		}
		if pid, ok := r.String(event.FieldPaymentID); ok && pid != "" {
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}
		}

		status, _ := r.String(event.FieldStatus)
		if status != lifecycle.PaymentFailed {
			s.failures[id] = 0
			continue
		}
		s.failures[id]++
		if s.failures[id] < FailedPaymentThreshold {
			continue
		}
		s.failures[id] = 0
		if _, ok := canceled[id]; !ok {
			n++
		}
	}
	return n
}

func overUsageLimit(usage event.Batch, cat catalog.Catalog) int {
	type tally struct {
		plan  string
		count int
	}
	users := make(map[string]*tally)
	for _, r := range usage {
		id, ok := r.String(event.FieldUserID)
		if !ok {
			continue
		}
		t := users[id]
		if t == nil {
			t = &tally{}
			users[id] = t
		}
		t.count++
		// Null-spiked rows keep the plan seen on the user's other rows.
		if plan, ok := r.String(event.FieldPlan); ok && plan != "" && t.plan == "" {
			t.plan = plan
		}
	}

	n := 0
	for _, t := range users {
		if t.plan == "" {
			continue
		}
		if limit := cat.UsageLimit(t.plan); limit > 0 && t.count > limit {
			n++
		}
	}
	return n
}
