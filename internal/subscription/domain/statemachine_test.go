package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLocator struct {
	loc *time.Location
}

func (f fixedLocator) Location(string) *time.Location { return f.loc }

var allStatuses = []Status{StatusFree, StatusTrialing, StatusActive, StatusPastDue, StatusUnpaid, StatusCancelled}

var allTriggers = []Trigger{
	TriggerTrialStart,
	TriggerConversionPayment,
	TriggerTrialExpired,
	TriggerPaymentFailed,
	TriggerPaymentRecovered,
	TriggerGraceElapsed,
	TriggerCancel,
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	toronto, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	return NewMachine(config.NewStaticBillingPolicyHolder(config.DefaultBillingPolicy()), fixedLocator{loc: toronto})
}

func TestNextTransitionTable(t *testing.T) {
	allowed := map[Status]map[Trigger]Status{
		StatusFree:     {TriggerTrialStart: StatusTrialing},
		StatusTrialing: {TriggerConversionPayment: StatusActive, TriggerTrialExpired: StatusFree},
		StatusActive:   {TriggerPaymentFailed: StatusPastDue, TriggerCancel: StatusCancelled},
		StatusPastDue:  {TriggerPaymentRecovered: StatusActive, TriggerGraceElapsed: StatusUnpaid, TriggerCancel: StatusCancelled},
		StatusUnpaid:   {TriggerCancel: StatusCancelled},
	}

	for _, from := range allStatuses {
		for _, trigger := range allTriggers {
			got, err := Next(from, trigger)
			want, ok := allowed[from][trigger]
			if ok {
				require.NoError(t, err, "%s on %s", trigger, from)
				assert.Equal(t, want, got, "%s on %s", trigger, from)
				continue
			}
			require.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", trigger, from)
			assert.Equal(t, from, got)
		}
	}
}

func TestRandomWalksStayOnTable(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for walk := 0; walk < 200; walk++ {
		status := StatusFree
		for step := 0; step < 30; step++ {
			trigger := allTriggers[rng.Intn(len(allTriggers))]
			next, err := Next(status, trigger)
			if err != nil {
				continue
			}
			require.NotEqual(t, StatusCancelled, status, "left a terminal state")
			status = next
		}
		require.True(t, status.Valid())
	}
}

func TestFireTrialStart(t *testing.T) {
	m := newTestMachine(t)
	at := time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: StatusFree, BillingInterval: IntervalMonthly}

	tr, err := m.Fire(sub, TriggerTrialStart, at)
	require.NoError(t, err)

	assert.Equal(t, StatusFree, tr.From)
	assert.Equal(t, StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, at.Add(7*24*time.Hour), *sub.TrialEndsAt)
	assert.True(t, sub.TrialConsumed)
	assert.Nil(t, sub.CoolingOffEndsAt)
	assert.Equal(t, at, sub.LastTransitionAt)
}

func TestFireConversionYearlySetsCoolingOff(t *testing.T) {
	m := newTestMachine(t)
	at := time.Date(2025, time.January, 1, 15, 0, 0, 0, time.UTC)
	trialEnd := at.Add(time.Hour)
	sub := &Subscription{Status: StatusTrialing, BillingInterval: IntervalYearly, TrialEndsAt: &trialEnd}

	_, err := m.Fire(sub, TriggerConversionPayment, at)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, sub.Status)
	assert.Nil(t, sub.TrialEndsAt)
	require.NotNil(t, sub.CoolingOffEndsAt)
	toronto, _ := time.LoadLocation("America/Toronto")
	assert.Equal(t, time.Date(2025, time.January, 15, 23, 59, 59, 999999000, toronto).UTC(), *sub.CoolingOffEndsAt)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, at.AddDate(1, 0, 0), *sub.CurrentPeriodEnd)
	require.NotNil(t, sub.ActivatedAt)
}

func TestFireConversionMonthlyHasNoCoolingOff(t *testing.T) {
	m := newTestMachine(t)
	at := time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: StatusTrialing, BillingInterval: IntervalMonthly}

	_, err := m.Fire(sub, TriggerConversionPayment, at)
	require.NoError(t, err)
	assert.Nil(t, sub.CoolingOffEndsAt)
	assert.Equal(t, at.AddDate(0, 1, 0), *sub.CurrentPeriodEnd)
}

func TestFirePaymentFailedAndRecovered(t *testing.T) {
	m := newTestMachine(t)
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub := &Subscription{
		Status:             StatusActive,
		BillingInterval:    IntervalMonthly,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}

	failedAt := end.Add(time.Hour)
	_, err := m.Fire(sub, TriggerPaymentFailed, failedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, sub.Status)
	assert.Equal(t, failedAt.Add(72*time.Hour), *sub.GraceEndsAt)

	recoveredAt := failedAt.Add(24 * time.Hour)
	_, err = m.Fire(sub, TriggerPaymentRecovered, recoveredAt)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Nil(t, sub.GraceEndsAt)
	assert.Equal(t, recoveredAt, *sub.CurrentPeriodStart)
}

func TestFireRejectedLeavesSubscriptionUntouched(t *testing.T) {
	m := newTestMachine(t)
	sub := &Subscription{Status: StatusCancelled, Version: 3}
	before := *sub

	_, err := m.Fire(sub, TriggerPaymentRecovered, time.Now())
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before, *sub)
}

func TestTrialAndCoolingOffNeverOverlap(t *testing.T) {
	m := newTestMachine(t)
	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: StatusFree, BillingInterval: IntervalYearly}

	for _, trigger := range []Trigger{TriggerTrialStart, TriggerConversionPayment, TriggerPaymentFailed, TriggerCancel} {
		_, err := m.Fire(sub, trigger, at)
		require.NoError(t, err)
		assert.False(t, sub.TrialEndsAt != nil && sub.CoolingOffEndsAt != nil, "trial and cooling-off both set after %s", trigger)
		at = at.Add(time.Hour)
	}
}

func TestDue(t *testing.T) {
	m := newTestMachine(t)
	now := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	earlier := now.Add(-2 * time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name    string
		sub     Subscription
		trigger Trigger
		at      time.Time
		due     bool
	}{
		{"trial expired", Subscription{Status: StatusTrialing, TrialEndsAt: &past}, TriggerTrialExpired, past, true},
		{"trial running", Subscription{Status: StatusTrialing, TrialEndsAt: &future}, "", time.Time{}, false},
		{"grace elapsed", Subscription{Status: StatusPastDue, GraceEndsAt: &past}, TriggerGraceElapsed, past, true},
		{"deferred cancel", Subscription{Status: StatusActive, CancelAt: &past}, TriggerCancel, past, true},
		{"earliest wins", Subscription{Status: StatusPastDue, GraceEndsAt: &past, CancelAt: &earlier}, TriggerCancel, earlier, true},
		{"free never due", Subscription{Status: StatusFree, TrialEndsAt: &past}, "", time.Time{}, false},
		{"cancelled never due", Subscription{Status: StatusCancelled, CancelAt: &past}, "", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trigger, at, due := m.Due(tc.sub, now)
			assert.Equal(t, tc.due, due)
			assert.Equal(t, tc.trigger, trigger)
			assert.Equal(t, tc.at, at)
		})
	}
}

func TestCoolingOffEndAcrossDST(t *testing.T) {
	toronto, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	// activation late evening local time, which is already the next day in UTC
	activated := time.Date(2025, time.March, 1, 3, 30, 0, 0, time.UTC)

	end := CoolingOffEnd(activated, 14, toronto)
	assert.Equal(t, time.Date(2025, time.March, 14, 23, 59, 59, 999999000, toronto).UTC(), end)
}
