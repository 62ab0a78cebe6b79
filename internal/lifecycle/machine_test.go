package lifecycle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/calendar"
	"github.com/smallbiznis/lifecyclesim/internal/catalog"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func y1Catalog() catalog.Catalog {
	return catalog.Catalog{
		Name: "y1",
		Tiers: []catalog.Tier{
			{Name: "Free", Price: 0, UsageLimit: 10},
			{Name: "Pro", Price: 15, UsageLimit: 100},
			{Name: "Business", Price: 50, UsageLimit: 300},
		},
	}
}

func y2Catalog() catalog.Catalog {
	return catalog.Catalog{
		Name: "y2",
		Tiers: []catalog.Tier{
			{Name: "Starter", Price: 0, UsageLimit: 10},
			{Name: "Growth", Price: 25, UsageLimit: 100},
			{Name: "Enterprise", Price: 80, UsageLimit: 300},
		},
		TrialUsageLimit: 50,
		CarryOver: map[string]string{
			"Free":     "Starter",
			"Pro":      "Growth",
			"Pro Plus": "Growth",
			"Business": "Enterprise",
		},
	}
}

func newTestMachine(t *testing.T, seed int64, cat catalog.Catalog, probs Probabilities) *Machine {
	t.Helper()
	m, err := NewMachine(Config{Catalog: cat, Probabilities: probs}, rand.New(rand.NewSource(seed)), calendar.NewZones(zap.NewNop()))
	require.NoError(t, err)
	return m
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func eventTypes(b event.Batch) []string {
	out := make([]string, 0, len(b))
	for _, r := range b {
		out = append(out, r[event.FieldEventType].(string))
	}
	return out
}

func TestTrialConvertsAndPaysEveryMonth(t *testing.T) {
	m := newTestMachine(t, 42, y1Catalog(), Probabilities{TrialConversion: 1})

	e := m.NewEntity(month(2024, 1))
	for i, mo := range calendar.MonthRange(month(2024, 1), month(2024, 3)) {
		m.Step(e, mo)
		out := e.Drain()

		if i == 0 {
			assert.Equal(t, []string{EventTrialStart, EventTrialConvert}, eventTypes(out.Subscriptions))
			assert.Equal(t, "Pro", out.Subscriptions[1][event.FieldPlan])
		} else {
			assert.Empty(t, out.Subscriptions)
		}

		require.Len(t, out.Payments, 1)
		pay := out.Payments[0]
		assert.Equal(t, PaymentSuccess, pay[event.FieldStatus])
		assert.Equal(t, 15.0, pay[event.FieldAmountUSD])
		assert.Equal(t, 1, pay[event.FieldAttemptNumber])

		require.NotEmpty(t, out.Usage)
		assert.LessOrEqual(t, len(out.Usage), 100)
		for _, u := range out.Usage {
			assert.Equal(t, "Pro", u[event.FieldPlan])
			assert.Equal(t, EventProductUsage, u[event.FieldEventType])
		}
	}
	assert.Equal(t, State{Plan: "Pro", Status: StatusActive}, e.State)
}

func TestThreeFailedPaymentsForceCancel(t *testing.T) {
	m := newTestMachine(t, 7, y1Catalog(), Probabilities{TrialConversion: 1, PaymentFailure: 1})

	e := m.NewEntity(month(2024, 1))
	for i, mo := range calendar.MonthRange(month(2024, 1), month(2024, 3)) {
		m.Step(e, mo)
		out := e.Drain()

		require.Len(t, out.Payments, 1, "month %d", i+1)
		assert.Equal(t, PaymentFailed, out.Payments[0][event.FieldStatus])
		assert.Equal(t, i+1, out.Payments[0][event.FieldAttemptNumber])

		if i < 2 {
			assert.NotEmpty(t, out.Usage)
			continue
		}
		types := eventTypes(out.Subscriptions)
		assert.Equal(t, []string{EventCancel}, types)
		assert.Equal(t, catalog.PlanCanceled, out.Subscriptions[0][event.FieldPlan])
		assert.Empty(t, out.Usage)
	}
	assert.Equal(t, StatusChurned, e.State.Status)
	assert.Equal(t, catalog.PlanCanceled, e.State.Plan)

	m.Step(e, month(2024, 4))
	assert.Zero(t, e.Drain().Len())
}

func TestExpiredNeverReactivates(t *testing.T) {
	m := newTestMachine(t, 11, y1Catalog(), Probabilities{TrialConversion: 0, Reactivation: 1})

	e := m.NewEntity(month(2024, 1))
	m.Step(e, month(2024, 1))
	out := e.Drain()
	assert.Equal(t, []string{EventTrialStart, EventTrialExpire}, eventTypes(out.Subscriptions))
	assert.Empty(t, out.Payments)
	assert.Empty(t, out.Usage)

	for _, mo := range calendar.MonthRange(month(2024, 2), month(2024, 12)) {
		m.Step(e, mo)
		assert.Zero(t, e.Drain().Len())
	}
	assert.Equal(t, State{Plan: catalog.PlanExpired, Status: StatusChurned}, e.State)
}

func TestCanceledReactivatesOnBaseTier(t *testing.T) {
	m := newTestMachine(t, 5, y1Catalog(), Probabilities{Reactivation: 1})

	st := State{Plan: catalog.PlanCanceled, Status: StatusChurned, ConsecutiveFailures: 2}
	next, out := m.Transition(Profile{ID: "u1", Timezone: "UTC"}, st, month(2024, 5))

	assert.Equal(t, State{Plan: "Free", Status: StatusActive}, next)
	assert.Equal(t, []string{EventReactivate}, eventTypes(out.Subscriptions))
	assert.Empty(t, out.Payments)
	assert.Empty(t, out.Usage)
}

func TestUpgradeDowngradeDoubleRoll(t *testing.T) {
	m := newTestMachine(t, 9, y1Catalog(), Probabilities{Upgrade: 1, Downgrade: 1})
	p := Profile{ID: "u1", Timezone: "Europe/Berlin"}

	next, out := m.Transition(p, State{Plan: "Pro", Status: StatusActive}, month(2024, 2))
	assert.Equal(t, "Business", next.Plan)
	assert.Equal(t, []string{EventUpgrade}, eventTypes(out.Subscriptions))

	// A won upgrade draw on the top tier does not fall through to a downgrade.
	next, out = m.Transition(p, State{Plan: "Business", Status: StatusActive}, month(2024, 2))
	assert.Equal(t, "Business", next.Plan)
	assert.Empty(t, out.Subscriptions)

	m = newTestMachine(t, 9, y1Catalog(), Probabilities{Downgrade: 1})
	next, out = m.Transition(p, State{Plan: "Business", Status: StatusActive}, month(2024, 2))
	assert.Equal(t, "Pro", next.Plan)
	assert.Equal(t, []string{EventDowngrade}, eventTypes(out.Subscriptions))
}

func TestFreeTierIsNotCharged(t *testing.T) {
	m := newTestMachine(t, 3, y1Catalog(), Probabilities{})
	next, out := m.Transition(Profile{ID: "u1", Timezone: "UTC"}, State{Plan: "Free", Status: StatusActive}, month(2024, 2))

	assert.Equal(t, "Free", next.Plan)
	assert.Empty(t, out.Payments)
	assert.NotEmpty(t, out.Usage)
	assert.LessOrEqual(t, len(out.Usage), 10)
}

func TestUnknownPlanIsInert(t *testing.T) {
	m := newTestMachine(t, 3, y1Catalog(), Probabilities{PaymentFailure: 1, Upgrade: 1})
	st := State{Plan: "Legacy", Status: StatusActive}
	next, out := m.Transition(Profile{ID: "u1", Timezone: "UTC"}, st, month(2024, 2))

	assert.Equal(t, st, next)
	assert.Zero(t, out.Len())

	next, out = m.Transition(Profile{ID: "u1"}, State{Plan: "Pro", Status: "Paused"}, month(2024, 2))
	assert.Equal(t, Status("Paused"), next.Status)
	assert.Zero(t, out.Len())
}

func TestStepNilEntityIsNoop(t *testing.T) {
	m := newTestMachine(t, 3, y1Catalog(), Probabilities{})
	m.Step(nil, month(2024, 1))
	var e *Entity
	assert.Zero(t, e.Drain().Len())
}

func TestCarryOver(t *testing.T) {
	m := newTestMachine(t, 84, y2Catalog(), Probabilities{})
	start := month(2025, 1)

	e, ok := m.CarryOver(event.Record{
		event.FieldUserID:             "6a1f0c2e-0000-4000-8000-000000000001",
		event.FieldCountry:            "JP",
		event.FieldTimezone:           "Asia/Tokyo",
		event.FieldName:               "Yui Sato",
		event.FieldEmail:              "yui.sato_6a1f0c2e@gmail.com",
		event.FieldAcquisitionChannel: "referral",
		event.FieldCurrentPlan:        "Pro Plus",
		event.FieldCurrentStatus:      "Active",
	}, start)
	require.True(t, ok)
	assert.Equal(t, State{Plan: "Growth", Status: StatusActive}, e.State)
	assert.Equal(t, "Yui Sato", e.Name)
	assert.Equal(t, "yui.sato_6a1f0c2e@gmail.com", e.Email)
	assert.Equal(t, "referral", e.Channel)
	assert.Equal(t, start, e.CreatedMonth)
	assert.Zero(t, e.Drain().Len(), "carried users emit no trial_start")

	e, ok = m.CarryOver(event.Record{
		event.FieldUserID:        "u2",
		event.FieldCountry:       "US",
		event.FieldTimezone:      "America/New_York",
		event.FieldCurrentPlan:   "Canceled",
		event.FieldCurrentStatus: "Churned",
	}, start)
	require.True(t, ok)
	assert.Equal(t, State{Plan: catalog.PlanCanceled, Status: StatusChurned}, e.State)
	assert.NotEmpty(t, e.Name)
	assert.NotEmpty(t, e.Email)

	e, ok = m.CarryOver(event.Record{event.FieldUserID: "u3", event.FieldCurrentPlan: "Mystery"}, start)
	require.True(t, ok)
	assert.Equal(t, "Starter", e.State.Plan)
	assert.NotEmpty(t, e.Timezone)

	_, ok = m.CarryOver(event.Record{event.FieldCurrentPlan: "Pro"}, start)
	assert.False(t, ok)
}

func TestSameSeedSameHistory(t *testing.T) {
	probs := Probabilities{TrialConversion: 0.4, Churn: 0.05, Upgrade: 0.1, Downgrade: 0.05, PaymentFailure: 0.05, Reactivation: 0.08}
	run := func() []string {
		m := newTestMachine(t, 42, y2Catalog(), probs)
		var ids []string
		var users []*Entity
		for _, mo := range calendar.MonthRange(month(2025, 1), month(2025, 6)) {
			for i := 0; i < 5; i++ {
				users = append(users, m.NewEntity(mo))
			}
			for _, u := range users {
				m.Step(u, mo)
				out := u.Drain()
				for _, r := range out.Subscriptions {
					ids = append(ids, r[event.FieldEventID].(string)+":"+r[event.FieldEventType].(string))
				}
				for _, r := range out.Payments {
					ids = append(ids, r[event.FieldPaymentID].(string))
				}
				ids = append(ids, string(rune('0'+len(out.Usage)%10)))
			}
		}
		return ids
	}
	assert.Equal(t, run(), run())
}

func TestGeneratedRecordsStayInBatchMonth(t *testing.T) {
	probs := Probabilities{TrialConversion: 0.6, Churn: 0.05, Upgrade: 0.1, Downgrade: 0.05, PaymentFailure: 0.2, Reactivation: 0.3}
	m := newTestMachine(t, 1, y2Catalog(), probs)

	var users []*Entity
	for _, mo := range calendar.MonthRange(month(2025, 1), month(2025, 12)) {
		for i := 0; i < 20; i++ {
			users = append(users, m.NewEntity(mo))
		}
		want := event.FormatBatchMonth(mo)
		for _, u := range users {
			m.Step(u, mo)
			out := u.Drain()
			check := func(b event.Batch, field string) {
				for _, r := range b {
					local, ok := r.Time(field)
					require.True(t, ok)
					if got := event.FormatBatchMonth(local); got != want || r[event.FieldBatchMonth] != want {
						t.Fatalf("record in %s has local month %s and batch %v", want, got, r[event.FieldBatchMonth])
					}
				}
			}
			check(out.Subscriptions, event.FieldEventTimeLocal)
			check(out.Payments, event.FieldPaymentTimeLocal)
			check(out.Usage, event.FieldEventTimeLocal)
		}
	}
}

func TestSnapshotRow(t *testing.T) {
	m := newTestMachine(t, 2, y1Catalog(), Probabilities{})
	e := m.NewEntity(month(2024, 3))
	row := m.SnapshotRow(e)

	assert.Equal(t, e.ID, row[event.FieldUserID])
	assert.Equal(t, "Active", row[event.FieldCurrentStatus])
	assert.Equal(t, catalog.PlanTrial, row[event.FieldCurrentPlan])
	created, ok := row.Time(event.FieldCreatedAtUTC)
	require.True(t, ok)
	assert.True(t, !created.Before(month(2024, 2)) && created.Before(month(2024, 5)))
}

func TestNewMachineValidates(t *testing.T) {
	_, err := NewMachine(Config{Catalog: y1Catalog()}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingRandom)

	_, err = NewMachine(Config{Catalog: y1Catalog(), Probabilities: Probabilities{Churn: 1.5}}, rand.New(rand.NewSource(1)), nil)
	assert.ErrorIs(t, err, ErrInvalidProbability)

	_, err = NewMachine(Config{}, rand.New(rand.NewSource(1)), nil)
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
}
