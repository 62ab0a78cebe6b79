package lifecycle

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lifecyclesim/internal/calendar"
	"github.com/smallbiznis/lifecyclesim/internal/catalog"
	"github.com/smallbiznis/lifecyclesim/internal/event"
)

var (
	ErrInvalidProbability = errors.New("invalid_probability")
	ErrMissingRandom      = errors.New("missing_random_source")
)

// Probabilities are the monthly Bernoulli rates driving transitions.
type Probabilities struct {
	TrialConversion float64
	Churn           float64
	Upgrade         float64
	Downgrade       float64
	PaymentFailure  float64
	Reactivation    float64
}

// Validate checks every rate lies in [0, 1].
func (p Probabilities) Validate() error {
	rates := []struct {
		name  string
		value float64
	}{
		{"trial_conversion", p.TrialConversion},
		{"churn", p.Churn},
		{"upgrade", p.Upgrade},
		{"downgrade", p.Downgrade},
		{"payment_failure", p.PaymentFailure},
		{"reactivation", p.Reactivation},
	}
	for _, r := range rates {
		if r.value < 0 || r.value > 1 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidProbability, r.name, r.value)
		}
	}
	return nil
}

// Config parameterizes a Machine for one era.
type Config struct {
	Catalog       catalog.Catalog
	Probabilities Probabilities
	Geography     []calendar.CountryZone
	Channels      []catalog.Channel
}

// Machine advances users month by month. All randomness comes from the
// source it was built with, so a fixed seed replays the same history.
type Machine struct {
	cfg   Config
	rng   *rand.Rand
	zones *calendar.Zones
}

// NewMachine validates cfg and binds the random source and zone converter.
func NewMachine(cfg Config, rng *rand.Rand, zones *calendar.Zones) (*Machine, error) {
	if rng == nil {
		return nil, ErrMissingRandom
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Probabilities.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Geography) == 0 {
		cfg.Geography = calendar.DefaultCountryZones
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = catalog.DefaultChannels
	}
	if zones == nil {
		zones = calendar.NewZones(nil)
	}
	return &Machine{cfg: cfg, rng: rng, zones: zones}, nil
}

// Catalog returns the plan ladder the machine runs on.
func (m *Machine) Catalog() catalog.Catalog {
	return m.cfg.Catalog
}

// NewEntity creates a trial user in month and buffers its trial_start.
func (m *Machine) NewEntity(month time.Time) *Entity {
	id := m.newID()
	zone := calendar.AssignCountryTimezone(m.rng, m.cfg.Geography)
	persona := catalog.NewPersona(m.rng, zone.Country, id)

	e := &Entity{
		Profile: Profile{
			ID:           id,
			Country:      zone.Country,
			Timezone:     zone.Timezone,
			Name:         persona.Name,
			Email:        persona.Email,
			Channel:      catalog.PickChannel(m.rng, m.cfg.Channels),
			CreatedMonth: calendar.MonthStart(month),
		},
		State: TrialState(),
	}
	e.pending.Subscriptions = append(e.pending.Subscriptions,
		m.subscription(e.Profile, EventTrialStart, catalog.PlanTrial, month))
	return e
}

// CarryOver rebuilds a user from a prior-era users row. The plan is remapped
// onto the current catalog; no trial_start is emitted. It returns false when
// the row has no user id.
func (m *Machine) CarryOver(row event.Record, month time.Time) (*Entity, bool) {
	id, _ := row.String(event.FieldUserID)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}

	country, _ := row.String(event.FieldCountry)
	tz, _ := row.String(event.FieldTimezone)
	if country == "" || tz == "" {
		zone := m.zoneFor(country)
		country, tz = zone.Country, zone.Timezone
	}

	name, _ := row.String(event.FieldName)
	email, _ := row.String(event.FieldEmail)
	channel, _ := row.String(event.FieldAcquisitionChannel)
	if name == "" || email == "" {
		persona := catalog.NewPersona(m.rng, country, id)
		if name == "" {
			name = persona.Name
		}
		if email == "" {
			email = persona.Email
		}
	}
	if channel == "" {
		channel = catalog.PickChannel(m.rng, m.cfg.Channels)
	}

	plan, _ := row.String(event.FieldCurrentPlan)
	plan = m.cfg.Catalog.CarryOverPlan(plan)

	status := StatusActive
	if raw, _ := row.String(event.FieldCurrentStatus); Status(raw) == StatusChurned {
		status = StatusChurned
	}
	if plan == catalog.PlanCanceled || plan == catalog.PlanExpired {
		status = StatusChurned
	}

	return &Entity{
		Profile: Profile{
			ID:           id,
			Country:      country,
			Timezone:     tz,
			Name:         name,
			Email:        email,
			Channel:      channel,
			CreatedMonth: calendar.MonthStart(month),
		},
		State: State{Plan: plan, Status: status},
	}, true
}

func (m *Machine) zoneFor(country string) calendar.CountryZone {
	for _, zone := range m.cfg.Geography {
		if zone.Country == country {
			return zone
		}
	}
	return calendar.AssignCountryTimezone(m.rng, m.cfg.Geography)
}

// Step advances e through month and buffers whatever it emits.
func (m *Machine) Step(e *Entity, month time.Time) {
	if e == nil {
		return
	}
	next, out := m.Transition(e.Profile, e.State, month)
	e.State = next
	e.pending.merge(out)
}

// Transition computes one month of a user's life. The order is fixed:
// reactivation for churned users, trial resolution, billing, random churn,
// plan change, then product usage.
func (m *Machine) Transition(p Profile, st State, month time.Time) (State, Output) {
	var out Output
	cat := m.cfg.Catalog
	probs := m.cfg.Probabilities

	switch st.Status {
	case StatusActive:
	case StatusChurned:
		if st.Plan == catalog.PlanCanceled && m.roll(probs.Reactivation) {
			st = State{Plan: cat.Base(), Status: StatusActive}
			out.Subscriptions = append(out.Subscriptions, m.subscription(p, EventReactivate, st.Plan, month))
		}
		return st, out
	default:
		return st, out
	}

	if st.Plan == catalog.PlanTrial {
		if m.roll(probs.TrialConversion) {
			st.Plan = cat.Mid()
			out.Subscriptions = append(out.Subscriptions, m.subscription(p, EventTrialConvert, st.Plan, month))
		} else {
			st.Plan = catalog.PlanExpired
			st.Status = StatusChurned
			out.Subscriptions = append(out.Subscriptions, m.subscription(p, EventTrialExpire, st.Plan, month))
			return st, out
		}
	}

	if cat.Billable(st.Plan) {
		failed := m.roll(probs.PaymentFailure)
		if failed {
			st.ConsecutiveFailures++
		} else {
			st.ConsecutiveFailures = 0
		}
		out.Payments = append(out.Payments, m.payment(p, cat.Price(st.Plan), failed, st.ConsecutiveFailures, month))

		if st.ConsecutiveFailures >= MaxConsecutiveFailures {
			st.Plan = catalog.PlanCanceled
			st.Status = StatusChurned
			out.Subscriptions = append(out.Subscriptions, m.subscription(p, EventCancel, st.Plan, month))
			return st, out
		}
	}

	if m.roll(probs.Churn) {
		st.Plan = catalog.PlanCanceled
		st.Status = StatusChurned
		out.Subscriptions = append(out.Subscriptions, m.subscription(p, EventCancel, st.Plan, month))
		return st, out
	}

	if cat.IsTier(st.Plan) {
		// The downgrade draw only happens when the upgrade draw misses.
		if m.roll(probs.Upgrade) {
			if target, ok := cat.UpgradeTarget(st.Plan); ok {
				st.Plan = target
				out.Subscriptions = append(out.Subscriptions, m.subscription(p, EventUpgrade, target, month))
			}
		} else if m.roll(probs.Downgrade) {
			if target, ok := cat.DowngradeTarget(st.Plan); ok {
				st.Plan = target
				out.Subscriptions = append(out.Subscriptions, m.subscription(p, EventDowngrade, target, month))
			}
		}
	}

	if cat.IsTier(st.Plan) || st.Plan == catalog.PlanTrial {
		if limit := cat.UsageLimit(st.Plan); limit > 0 {
			count := 1 + m.rng.Intn(limit)
			for i := 0; i < count; i++ {
				out.Usage = append(out.Usage, m.usage(p, st.Plan, month))
			}
		}
	}

	return st, out
}

// SnapshotRow renders the users row for e, drawing created_at_utc inside its
// creation month.
func (m *Machine) SnapshotRow(e *Entity) event.Record {
	local := calendar.RandomTimestampInMonth(m.rng, e.CreatedMonth)
	return e.Snapshot(m.zones.LocalToUTC(local, e.Timezone))
}

func (m *Machine) roll(p float64) bool {
	return m.rng.Float64() < p
}

func (m *Machine) newID() string {
	id, err := uuid.NewRandomFromReader(m.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (m *Machine) stamp(p Profile, month time.Time) (time.Time, time.Time) {
	local := calendar.RandomTimestampInMonth(m.rng, month)
	return local, m.zones.LocalToUTC(local, p.Timezone)
}

func (m *Machine) subscription(p Profile, eventType, plan string, month time.Time) event.Record {
	local, utc := m.stamp(p, month)
	return event.Record{
		event.FieldEventID:        m.newID(),
		event.FieldUserID:         p.ID,
		event.FieldEventType:      eventType,
		event.FieldPlan:           plan,
		event.FieldEventTimeLocal: local,
		event.FieldEventTimeUTC:   utc,
		event.FieldCountry:        p.Country,
		event.FieldBatchMonth:     event.FormatBatchMonth(month),
	}
}

func (m *Machine) payment(p Profile, amount float64, failed bool, failures int, month time.Time) event.Record {
	local, utc := m.stamp(p, month)
	status, attempt := PaymentSuccess, 1
	if failed {
		status, attempt = PaymentFailed, failures
	}
	return event.Record{
		event.FieldPaymentID:        m.newID(),
		event.FieldUserID:           p.ID,
		event.FieldAmountUSD:        amount,
		event.FieldStatus:           status,
		event.FieldAttemptNumber:    attempt,
		event.FieldPaymentTimeLocal: local,
		event.FieldPaymentTimeUTC:   utc,
		event.FieldBatchMonth:       event.FormatBatchMonth(month),
	}
}

func (m *Machine) usage(p Profile, plan string, month time.Time) event.Record {
	local, utc := m.stamp(p, month)
	return event.Record{
		event.FieldEventID:        m.newID(),
		event.FieldUserID:         p.ID,
		event.FieldEventType:      EventProductUsage,
		event.FieldPlan:           plan,
		event.FieldEventTimeLocal: local,
		event.FieldEventTimeUTC:   utc,
		event.FieldBatchMonth:     event.FormatBatchMonth(month),
	}
}
