package domain

import (
	"fmt"
	"time"

	"github.com/smallbiznis/nestbill/internal/config"
)

// Trigger is an event kind that may move a subscription between states.
type Trigger string

const (
	TriggerTrialStart        Trigger = "trial_start"
	TriggerConversionPayment Trigger = "conversion_payment"
	TriggerTrialExpired      Trigger = "trial_expired"
	TriggerPaymentFailed     Trigger = "payment_failed"
	TriggerPaymentRecovered  Trigger = "payment_recovered"
	TriggerGraceElapsed      Trigger = "grace_elapsed"
	TriggerCancel            Trigger = "cancel"
)

// Next is the transition table. Every pair not listed is rejected with
// ErrInvalidTransition; CANCELLED accepts nothing.
func Next(current Status, trigger Trigger) (Status, error) {
	switch current {
	case StatusFree:
		if trigger == TriggerTrialStart {
			return StatusTrialing, nil
		}
	case StatusTrialing:
		switch trigger {
		case TriggerConversionPayment:
			return StatusActive, nil
		case TriggerTrialExpired:
			return StatusFree, nil
		}
	case StatusActive:
		switch trigger {
		case TriggerPaymentFailed:
			return StatusPastDue, nil
		case TriggerCancel:
			return StatusCancelled, nil
		}
	case StatusPastDue:
		switch trigger {
		case TriggerPaymentRecovered:
			return StatusActive, nil
		case TriggerGraceElapsed:
			return StatusUnpaid, nil
		case TriggerCancel:
			return StatusCancelled, nil
		}
	case StatusUnpaid:
		if trigger == TriggerCancel {
			return StatusCancelled, nil
		}
	}
	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, trigger, current)
}

// Transition describes an applied state change.
type Transition struct {
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Trigger Trigger   `json:"trigger"`
	At      time.Time `json:"at"`
}

// Locator resolves the time zone of a jurisdiction.
type Locator interface {
	Location(jurisdiction string) *time.Location
}

// Machine applies transitions and their timestamp side effects to an
// in-memory subscription. It performs no I/O.
type Machine struct {
	policy  *config.BillingPolicyHolder
	locator Locator
}

func NewMachine(policy *config.BillingPolicyHolder, locator Locator) *Machine {
	return &Machine{policy: policy, locator: locator}
}

// Fire moves sub along trigger at the given instant. On error sub is left
// unchanged.
func (m *Machine) Fire(sub *Subscription, trigger Trigger, at time.Time) (Transition, error) {
	if sub == nil {
		return Transition{}, ErrInvalidSubscription
	}
	to, err := Next(sub.Status, trigger)
	if err != nil {
		return Transition{}, err
	}

	at = at.UTC()
	policy := m.policy.Get()
	from := sub.Status

	switch trigger {
	case TriggerTrialStart:
		sub.TrialEndsAt = timePtr(at.Add(policy.TrialPeriod))
		sub.TrialConsumed = true
		sub.CoolingOffEndsAt = nil
	case TriggerConversionPayment:
		sub.TrialEndsAt = nil
		sub.ActivatedAt = timePtr(at)
		sub.CurrentPeriodStart = timePtr(at)
		sub.CurrentPeriodEnd = timePtr(PeriodEnd(at, sub.BillingInterval))
		if sub.BillingInterval == IntervalYearly {
			end := CoolingOffEnd(at, policy.CoolingOffDays, m.location(sub.Jurisdiction))
			sub.CoolingOffEndsAt = &end
		}
	case TriggerTrialExpired:
		sub.TrialEndsAt = nil
	case TriggerPaymentFailed:
		sub.GraceEndsAt = timePtr(at.Add(policy.GracePeriod))
	case TriggerPaymentRecovered:
		sub.GraceEndsAt = nil
		m.AdvancePeriod(sub, at)
	case TriggerGraceElapsed:
		sub.GraceEndsAt = nil
	case TriggerCancel:
		sub.CancelledAt = timePtr(at)
		sub.CancelAt = nil
		sub.GraceEndsAt = nil
	default:
		return Transition{}, ErrInvalidTrigger
	}

	sub.Status = to
	sub.LastTransitionAt = at
	return Transition{From: from, To: to, Trigger: trigger, At: at}, nil
}

// AdvancePeriod opens the next billing period after a renewal payment. A
// payment before the current period ends extends from that end; a late one
// starts a fresh period at the payment time.
func (m *Machine) AdvancePeriod(sub *Subscription, at time.Time) {
	start := at.UTC()
	if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(start) {
		start = *sub.CurrentPeriodEnd
	}
	sub.CurrentPeriodStart = timePtr(start)
	sub.CurrentPeriodEnd = timePtr(PeriodEnd(start, sub.BillingInterval))
}

// Due reports the earliest time-driven trigger that has come due by now,
// together with the instant it became due.
func (m *Machine) Due(sub Subscription, now time.Time) (Trigger, time.Time, bool) {
	var (
		trigger Trigger
		at      time.Time
		found   bool
	)
	consider := func(t Trigger, deadline *time.Time) {
		if deadline == nil || now.Before(*deadline) {
			return
		}
		if !found || deadline.Before(at) {
			trigger, at, found = t, *deadline, true
		}
	}

	switch sub.Status {
	case StatusTrialing:
		consider(TriggerTrialExpired, sub.TrialEndsAt)
	case StatusPastDue:
		consider(TriggerGraceElapsed, sub.GraceEndsAt)
		consider(TriggerCancel, sub.CancelAt)
	case StatusActive, StatusUnpaid:
		consider(TriggerCancel, sub.CancelAt)
	}
	return trigger, at, found
}

func (m *Machine) location(jurisdiction string) *time.Location {
	if m.locator == nil {
		return time.UTC
	}
	if loc := m.locator.Location(jurisdiction); loc != nil {
		return loc
	}
	return time.UTC
}

// PeriodEnd returns the end of a billing period starting at start.
func PeriodEnd(start time.Time, interval Interval) time.Time {
	if interval == IntervalYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// CoolingOffEnd is the last instant of the cooling-off window: the end of
// the local calendar day that falls days after the activation date. The
// instant is truncated to microseconds so it survives a timestamptz column.
func CoolingOffEnd(activatedAt time.Time, days int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := activatedAt.In(loc)
	y, mo, d := local.Date()
	nextMidnight := time.Date(y, mo, d+days+1, 0, 0, 0, 0, loc)
	return nextMidnight.Add(-time.Microsecond).UTC()
}

func timePtr(t time.Time) *time.Time {
	return &t
}
