package event

import (
	"testing"
	"time"
)

func TestRecordCloneIsDeep(t *testing.T) {
	ts := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	original := Record{
		FieldPlan:         "Pro",
		FieldEventTimeUTC: ts,
		"meta":            map[string]any{"source": "a"},
		FieldReferralCode: nil,
	}

	clone := original.Clone()
	clone[FieldPlan] = "Business"
	clone["meta"].(map[string]any)["source"] = "b"

	if original[FieldPlan] != "Pro" {
		t.Fatalf("expected original plan untouched, got %v", original[FieldPlan])
	}
	if original["meta"].(map[string]any)["source"] != "a" {
		t.Fatalf("expected nested map untouched")
	}
	if !clone.Has(FieldReferralCode) {
		t.Fatalf("expected nil-valued field to be preserved")
	}
}

func TestBatchCloneOfNilIsEmpty(t *testing.T) {
	var b Batch
	out := b.Clone()
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil batch, got %#v", out)
	}
}

func TestPairedTimeField(t *testing.T) {
	cases := map[string]string{
		FieldEventTimeUTC:     FieldEventTimeLocal,
		FieldPaymentTimeLocal: FieldPaymentTimeUTC,
	}
	for in, want := range cases {
		got, ok := PairedTimeField(in)
		if !ok || got != want {
			t.Fatalf("PairedTimeField(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := PairedTimeField(FieldCreatedAtUTC); ok {
		t.Fatalf("expected created_at_utc to have no pair")
	}
}

func TestUTCTimeField(t *testing.T) {
	if got := UTCTimeField(DatasetPayments); got != FieldPaymentTimeUTC {
		t.Fatalf("payments ts field = %q", got)
	}
	if got := UTCTimeField(DatasetProduct); got != FieldEventTimeUTC {
		t.Fatalf("product ts field = %q", got)
	}
	if got := UTCTimeField(DatasetUsers); got != FieldCreatedAtUTC {
		t.Fatalf("users ts field = %q", got)
	}
}

func TestEncodeDecodeTimestamps(t *testing.T) {
	ts := time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC)
	r := Record{
		FieldEventTimeLocal: ts,
		FieldPlan:           "Pro",
		FieldAmountUSD:      nil,
	}

	enc := Encode(r)
	if enc[FieldEventTimeLocal] != "2024-03-10T02:30:00" {
		t.Fatalf("unexpected encoded timestamp %v", enc[FieldEventTimeLocal])
	}
	if _, ok := enc[FieldAmountUSD]; !ok {
		t.Fatalf("expected null field to survive encoding")
	}

	enc[FieldPlan] = "renamed"
	enc["free_text"] = "2024-03-10T02:30:00"
	dec := Decode(enc)
	got, ok := dec.Time(FieldEventTimeLocal)
	if !ok || !got.Equal(ts) {
		t.Fatalf("expected decoded timestamp %v, got %v", ts, dec[FieldEventTimeLocal])
	}
	if _, ok := dec["free_text"].(string); !ok {
		t.Fatalf("expected unknown fields to stay strings")
	}
	if r[FieldPlan] != "Pro" {
		t.Fatalf("expected Encode to copy")
	}
}

func TestEventDate(t *testing.T) {
	r := Record{FieldPaymentTimeUTC: time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), FieldAmountUSD: "15.0"}
	if d, ok := EventDate(r, FieldPaymentTimeUTC); !ok || d != "2024-12-31" {
		t.Fatalf("unexpected event date %q %v", d, ok)
	}
	if _, ok := EventDate(r, FieldAmountUSD); ok {
		t.Fatalf("expected non-time field to have no date")
	}
}
