package report

import (
	"sync"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/catalog"
	"github.com/smallbiznis/lifecyclesim/internal/event"
)

// Collector validates every month the runner writes.
type Collector struct {
	mu      sync.Mutex
	catalog catalog.Catalog
	streaks *streaks
	checks  map[string]Checks
}

func NewCollector(cat catalog.Catalog) *Collector {
	return &Collector{
		catalog: cat,
		streaks: newStreaks(),
		checks:  make(map[string]Checks),
	}
}

// ObserveMonth validates month. Months must arrive in order since failed
// payment streaks run across them.
func (c *Collector) ObserveMonth(month time.Time, batches map[string]event.Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[event.FormatBatchMonth(month)] = validate(batches, c.catalog, c.streaks)
}

// Checks returns the counters recorded for month.
func (c *Collector) Checks(month time.Time) Checks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks[event.FormatBatchMonth(month)]
}
