package calendar

import (
	"math/rand"
	"time"
)

// MonthStart truncates t to midnight of the first day of its month, keeping its location.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// AddMonthsClamped shifts t by n calendar months. The day of month is clamped to
// the last day of the target month, so Jan 31 + 1 month is Feb 28 or 29.
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(monthStart time.Time) int {
	return monthStart.AddDate(0, 1, -1).Day()
}

// MonthIndex returns the 1-based position of month relative to start.
func MonthIndex(start, month time.Time) int {
	return (month.Year()-start.Year())*12 + int(month.Month()) - int(start.Month()) + 1
}

// MonthRange lists the first day of every month in [start, end], inclusive.
func MonthRange(start, end time.Time) []time.Time {
	start = MonthStart(start)
	end = MonthStart(end)
	if end.Before(start) {
		return nil
	}
	months := make([]time.Time, 0, MonthIndex(start, end))
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// RandomTimestampInMonth draws a whole-second instant uniformly from
// [monthStart, monthStart + 1 month).
func RandomTimestampInMonth(rng *rand.Rand, monthStart time.Time) time.Time {
	start := MonthStart(monthStart)
	end := start.AddDate(0, 1, 0)
	seconds := int64(end.Sub(start) / time.Second)
	return start.Add(time.Duration(rng.Int63n(seconds)) * time.Second)
}
