package chaos

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/calendar"
	"github.com/smallbiznis/lifecyclesim/internal/event"
)

// The injectors below mutate the batch they are given and report how many
// records they touched. Engine.Apply hands them a private copy.

var referralFormats = []func(rng *rand.Rand) any{
	func(rng *rand.Rand) any { return "REF-" + referralCode(rng) },
	func(rng *rand.Rand) any { return "ref_" + referralCode(rng) },
	func(rng *rand.Rand) any { return "Ref" + referralCode(rng) },
	func(rng *rand.Rand) any { return referralCode(rng) },
	func(*rand.Rand) any { return nil },
	func(*rand.Rand) any { return "N/A" },
	func(*rand.Rand) any { return "" },
	func(*rand.Rand) any { return "ORGANIC" },
}

const referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// lateArrival shifts int(len*rate) records, sampled without replacement, one
// calendar month forward. The paired local/UTC field keeps its original offset
// from the shifted one.
func lateArrival(rng *rand.Rand, b event.Batch, field string, rate float64) int {
	n := int(float64(len(b)) * rate)
	if n == 0 {
		return 0
	}
	pair, hasPair := event.PairedTimeField(field)
	touched := 0
	for _, i := range rng.Perm(len(b))[:n] {
		ts, ok := b[i].Time(field)
		if !ok {
			continue
		}
		shifted := calendar.AddMonthsClamped(ts, 1)
		b[i][field] = shifted
		if hasPair {
			if other, ok := b[i].Time(pair); ok {
				b[i][pair] = shifted.Add(other.Sub(ts))
			}
		}
		touched++
	}
	return touched
}

func rename(b event.Batch, field, from, to string) int {
	touched := 0
	for _, r := range b {
		if v, ok := r.String(field); ok && v == from {
			r[field] = to
			touched++
		}
	}
	return touched
}

func addFields(b event.Batch, fields map[string]any) int {
	for _, r := range b {
		for k, v := range fields {
			r[k] = v
		}
	}
	return len(b)
}

// duplicate keeps every record and, with probability rate, appends a deep copy
// right after it.
func duplicate(rng *rand.Rand, b event.Batch, rate float64) (event.Batch, int) {
	out := make(event.Batch, 0, len(b))
	added := 0
	for _, r := range b {
		out = append(out, r)
		if rng.Float64() < rate {
			out = append(out, r.Clone())
			added++
		}
	}
	return out, added
}

// coerceString replaces numeric values of field with their string form. Nil
// values and records without the field are left alone.
func coerceString(b event.Batch, field string) int {
	touched := 0
	for _, r := range b {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		if s, ok := numericString(v); ok {
			r[field] = s
			touched++
		}
	}
	return touched
}

func numericString(v any) (string, bool) {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	default:
		return "", false
	}
}

// referralNoise sets field on a rate fraction of records to an inconsistently
// formatted campaign code, or to a null, empty or placeholder value.
func referralNoise(rng *rand.Rand, b event.Batch, field string, rate float64) int {
	touched := 0
	for _, r := range b {
		if rng.Float64() >= rate {
			continue
		}
		format := referralFormats[rng.Intn(len(referralFormats))]
		r[field] = format(rng)
		touched++
	}
	return touched
}

func referralCode(rng *rand.Rand) string {
	var sb strings.Builder
	sb.Grow(6)
	for i := 0; i < 6; i++ {
		sb.WriteByte(referralAlphabet[rng.Intn(len(referralAlphabet))])
	}
	return sb.String()
}

// timestampCollision forces int(len*rate) sampled records onto the timestamp of
// the first one sampled. Fewer than two picks is a no-op.
func timestampCollision(rng *rand.Rand, b event.Batch, field string, rate float64) int {
	if len(b) < 2 {
		return 0
	}
	n := int(float64(len(b)) * rate)
	if n < 2 {
		return 0
	}
	idxs := rng.Perm(len(b))[:n]
	anchor, ok := b[idxs[0]].Time(field)
	if !ok {
		return 0
	}
	touched := 0
	for _, i := range idxs[1:] {
		if !b[i].Has(field) {
			continue
		}
		b[i][field] = anchor
		touched++
	}
	return touched
}

// nullSpike nulls field on a rate fraction of the records that carry it.
func nullSpike(rng *rand.Rand, b event.Batch, field string, rate float64) int {
	touched := 0
	for _, r := range b {
		if !r.Has(field) {
			continue
		}
		if rng.Float64() < rate {
			r[field] = nil
			touched++
		}
	}
	return touched
}

// planMigration relabels field. Each record with a non-nil value rolls once:
// dirty picks a malformed variant, stale keeps the value as it is, and the
// remainder is renamed cleanly through the mapping.
func planMigration(rng *rand.Rand, b event.Batch, field string, mig Migration, dirty, stale float64) int {
	touched := 0
	for _, r := range b {
		plan, ok := r.String(field)
		if !ok {
			continue
		}
		roll := rng.Float64()
		next := plan
		switch {
		case roll < 1-dirty-stale:
			if mapped, ok := mig.Mapping[plan]; ok {
				next = mapped
			}
		case roll < 1-dirty:
			// stale
		default:
			if len(mig.DirtyVariants) > 0 {
				next = mig.DirtyVariants[rng.Intn(len(mig.DirtyVariants))]
			}
		}
		if next != plan {
			r[field] = next
			touched++
		}
	}
	return touched
}

// timeShift nudges a rate fraction of records by a uniform offset in
// [-bound, +bound] at second resolution.
func timeShift(rng *rand.Rand, b event.Batch, field string, rate float64, bound time.Duration) int {
	span := int64(bound / time.Second)
	if span <= 0 || span > math.MaxInt64/2 {
		return 0
	}
	touched := 0
	for _, r := range b {
		ts, ok := r.Time(field)
		if !ok || rng.Float64() >= rate {
			continue
		}
		offset := time.Duration(rng.Int63n(2*span+1)-span) * time.Second
		r[field] = ts.Add(offset)
		touched++
	}
	return touched
}
