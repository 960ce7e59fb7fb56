package refund

import (
	"testing"
	"time"

	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toronto(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	return loc
}

func activeSub(interval subscriptiondomain.Interval, activated time.Time) subscriptiondomain.Subscription {
	end := subscriptiondomain.PeriodEnd(activated, interval)
	return subscriptiondomain.Subscription{
		Status:             subscriptiondomain.StatusActive,
		BillingInterval:    interval,
		ActivatedAt:        &activated,
		CurrentPeriodStart: &activated,
		CurrentPeriodEnd:   &end,
	}
}

func payment(total int64) *invoicedomain.BillingRecord {
	return &invoicedomain.BillingRecord{Type: invoicedomain.RecordTypePayment, Subtotal: 9999, Total: total, Currency: "CAD"}
}

func TestYearlyCancelOnDayNineRefundsInFull(t *testing.T) {
	loc := toronto(t)
	activated := time.Date(2025, time.January, 1, 12, 0, 0, 0, loc)
	now := time.Date(2025, time.January, 10, 9, 0, 0, 0, loc)

	got := Evaluate(activeSub(subscriptiondomain.IntervalYearly, activated.UTC()), payment(11299), now, loc)

	assert.True(t, got.Eligible)
	assert.Equal(t, int64(11299), got.RefundAmount)
	assert.Equal(t, "CAD", got.Currency)
	assert.Equal(t, now.UTC(), got.AccessUntil)
	assert.Equal(t, ReasonEligible, got.Reason)
}

func TestWindowBoundaryIsInclusiveThroughEndOfLocalDay(t *testing.T) {
	loc := toronto(t)
	activated := time.Date(2025, time.January, 1, 23, 30, 0, 0, loc)
	sub := activeSub(subscriptiondomain.IntervalYearly, activated.UTC())

	lastSecond := time.Date(2025, time.January, 15, 23, 59, 59, 0, loc)
	got := Evaluate(sub, payment(100), lastSecond, loc)
	assert.True(t, got.Eligible)

	halfSecondLater := lastSecond.Add(500 * time.Millisecond)
	got = Evaluate(sub, payment(100), halfSecondLater, loc)
	assert.True(t, got.Eligible)

	justAfter := lastSecond.Add(time.Second)
	got = Evaluate(sub, payment(100), justAfter, loc)
	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonWindowElapsed, got.Reason)
	assert.Equal(t, *sub.CurrentPeriodEnd, got.AccessUntil)
}

func TestStoredWindowEndWins(t *testing.T) {
	loc := toronto(t)
	activated := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	sub := activeSub(subscriptiondomain.IntervalYearly, activated)
	stored := activated.Add(48 * time.Hour)
	sub.CoolingOffEndsAt = &stored

	got := Evaluate(sub, payment(100), activated.Add(72*time.Hour), loc)
	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonWindowElapsed, got.Reason)
}

func TestIneligibleReasons(t *testing.T) {
	loc := toronto(t)
	activated := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	now := activated.Add(24 * time.Hour)

	monthly := Evaluate(activeSub(subscriptiondomain.IntervalMonthly, activated), payment(100), now, loc)
	assert.Equal(t, ReasonMonthlyPlan, monthly.Reason)
	assert.Equal(t, activated.AddDate(0, 1, 0), monthly.AccessUntil)

	trialing := subscriptiondomain.Subscription{Status: subscriptiondomain.StatusTrialing, BillingInterval: subscriptiondomain.IntervalYearly}
	assert.Equal(t, ReasonNotActivated, Evaluate(trialing, nil, now, loc).Reason)

	noPayment := Evaluate(activeSub(subscriptiondomain.IntervalYearly, activated), nil, now, loc)
	assert.Equal(t, ReasonNoPayment, noPayment.Reason)
	assert.False(t, noPayment.Eligible)
	assert.Zero(t, noPayment.RefundAmount)
}
