package lifecycle

import (
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/catalog"
	"github.com/smallbiznis/lifecyclesim/internal/event"
)

// Status is the coarse account state.
type Status string

const (
	StatusActive  Status = "Active"
	StatusChurned Status = "Churned"
)

// Subscription and usage event types.
const (
	EventTrialStart   = "trial_start"
	EventTrialConvert = "trial_convert"
	EventTrialExpire  = "trial_expire"
	EventCancel       = "cancel"
	EventReactivate   = "reactivate"
	EventUpgrade      = "upgrade"
	EventDowngrade    = "downgrade"
	EventProductUsage = "product_usage"
)

// Payment outcomes.
const (
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

// MaxConsecutiveFailures is the number of failed payments in a row that force a cancel.
const MaxConsecutiveFailures = 3

// State is the mutable part of a user, advanced once per simulated month.
type State struct {
	Plan                string
	Status              Status
	ConsecutiveFailures int
}

// TrialState is the state every new user starts in.
func TrialState() State {
	return State{Plan: catalog.PlanTrial, Status: StatusActive}
}

// Profile is the immutable identity of a user.
type Profile struct {
	ID           string
	Country      string
	Timezone     string
	Name         string
	Email        string
	Channel      string
	CreatedMonth time.Time
}

// Output holds the records a user emitted in one month.
type Output struct {
	Subscriptions event.Batch
	Payments      event.Batch
	Usage         event.Batch
}

// Len is the total number of records across datasets.
func (o Output) Len() int {
	return len(o.Subscriptions) + len(o.Payments) + len(o.Usage)
}

func (o *Output) merge(other Output) {
	o.Subscriptions = append(o.Subscriptions, other.Subscriptions...)
	o.Payments = append(o.Payments, other.Payments...)
	o.Usage = append(o.Usage, other.Usage...)
}

// Entity is a simulated user: identity, state and the records buffered since
// the last drain.
type Entity struct {
	Profile
	State State

	pending Output
}

// Drain returns the buffered records and empties the buffer.
func (e *Entity) Drain() Output {
	if e == nil {
		return Output{}
	}
	out := e.pending
	e.pending = Output{}
	return out
}

// Snapshot renders the users dimension row for the entity.
func (e *Entity) Snapshot(createdAtUTC time.Time) event.Record {
	return event.Record{
		event.FieldUserID:             e.ID,
		event.FieldName:               e.Name,
		event.FieldEmail:              e.Email,
		event.FieldAcquisitionChannel: e.Channel,
		event.FieldCountry:            e.Country,
		event.FieldTimezone:           e.Timezone,
		event.FieldCurrentStatus:      string(e.State.Status),
		event.FieldCurrentPlan:        e.State.Plan,
		event.FieldCreatedAtUTC:       createdAtUTC,
	}
}
