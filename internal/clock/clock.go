package clock

import "time"

// Clock supplies wall-clock time for load timestamps and run durations.
// Simulated time never comes from here.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns the system clock in UTC.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}
