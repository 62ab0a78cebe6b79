package event

import (
	"time"
)

// Dataset names shared by the generator, the chaos engine and the sinks.
const (
	DatasetSubscriptions = "subscription_events"
	DatasetPayments      = "payments"
	DatasetProduct       = "product_events"
	DatasetUsers         = "users"
)

// Record field names.
const (
	FieldEventID            = "event_id"
	FieldPaymentID          = "payment_id"
	FieldUserID             = "user_id"
	FieldEventType          = "event_type"
	FieldPlan               = "plan"
	FieldCountry            = "country"
	FieldBatchMonth         = "batch_month"
	FieldEventTimeLocal     = "event_timestamp_local"
	FieldEventTimeUTC       = "event_timestamp_utc"
	FieldPaymentTimeLocal   = "payment_timestamp_local"
	FieldPaymentTimeUTC     = "payment_timestamp_utc"
	FieldAmountUSD          = "amount_usd"
	FieldStatus             = "status"
	FieldAttemptNumber      = "attempt_number"
	FieldName               = "name"
	FieldEmail              = "email"
	FieldAcquisitionChannel = "acquisition_channel"
	FieldTimezone           = "timezone"
	FieldCurrentStatus      = "current_status"
	FieldCurrentPlan        = "current_plan"
	FieldCreatedAtUTC       = "created_at_utc"
	FieldReferralCode       = "referral_code"
)

// BatchMonthLayout formats batch_month values.
const BatchMonthLayout = "2006-01"

// Record is one flat event row. Values are scalars: string, float64, int,
// time.Time or nil.
type Record map[string]any

// Batch is an ordered list of records for one dataset and month.
type Batch []Record

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return map[string]any(Record(typed).Clone())
	case Record:
		return typed.Clone()
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = cloneValue(typed[i])
		}
		return out
	default:
		return v
	}
}

// Has reports whether the field is present, even when its value is nil.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// String returns the field as a string when it holds one.
func (r Record) String(field string) (string, bool) {
	s, ok := r[field].(string)
	return s, ok
}

// Time returns the field as a time.Time when it holds one.
func (r Record) Time(field string) (time.Time, bool) {
	t, ok := r[field].(time.Time)
	return t, ok
}

// Clone returns a deep copy of every record in the batch.
func (b Batch) Clone() Batch {
	if b == nil {
		return Batch{}
	}
	out := make(Batch, len(b))
	for i, r := range b {
		out[i] = r.Clone()
	}
	return out
}

// FormatBatchMonth renders the month a record was generated in.
func FormatBatchMonth(month time.Time) string {
	return month.Format(BatchMonthLayout)
}

// PairedTimeField returns the local/UTC counterpart of a timestamp field.
func PairedTimeField(field string) (string, bool) {
	switch field {
	case FieldEventTimeUTC:
		return FieldEventTimeLocal, true
	case FieldEventTimeLocal:
		return FieldEventTimeUTC, true
	case FieldPaymentTimeUTC:
		return FieldPaymentTimeLocal, true
	case FieldPaymentTimeLocal:
		return FieldPaymentTimeUTC, true
	default:
		return "", false
	}
}

// LocalTimeField returns the wall-clock timestamp field for a dataset.
func LocalTimeField(dataset string) string {
	if dataset == DatasetPayments {
		return FieldPaymentTimeLocal
	}
	return FieldEventTimeLocal
}

// UTCTimeField returns the timestamp field a dataset is partitioned by.
func UTCTimeField(dataset string) string {
	switch dataset {
	case DatasetPayments:
		return FieldPaymentTimeUTC
	case DatasetUsers:
		return FieldCreatedAtUTC
	default:
		return FieldEventTimeUTC
	}
}
