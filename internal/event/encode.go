package event

import (
	"time"
)

// TimestampLayout is how timestamps leave the process. Local timestamps are
// wall-clock values without an offset, so no zone suffix is written for
// either kind.
const TimestampLayout = "2006-01-02T15:04:05"

var timeFields = map[string]struct{}{
	FieldEventTimeLocal:   {},
	FieldEventTimeUTC:     {},
	FieldPaymentTimeLocal: {},
	FieldPaymentTimeUTC:   {},
	FieldCreatedAtUTC:     {},
}

// IsTimeField reports whether field carries a timestamp.
func IsTimeField(field string) bool {
	_, ok := timeFields[field]
	return ok
}

// Encode returns a copy of r with timestamps rendered in TimestampLayout,
// ready for JSON.
func Encode(r Record) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		if ts, ok := v.(time.Time); ok {
			out[k] = ts.Format(TimestampLayout)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Decode is the inverse of Encode for rows read back from storage. Known
// timestamp fields holding a parseable string become time.Time; anything
// else is kept as decoded.
func Decode(raw map[string]any) Record {
	out := make(Record, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok && IsTimeField(k) {
			if ts, err := time.Parse(TimestampLayout, s); err == nil {
				out[k] = ts
				continue
			}
		}
		out[k] = v
	}
	return out
}

// EventDate returns the partition date of r by field, and false when the
// field is missing or not a timestamp.
func EventDate(r Record, field string) (string, bool) {
	ts, ok := r.Time(field)
	if !ok {
		return "", false
	}
	return ts.Format("2006-01-02"), true
}
