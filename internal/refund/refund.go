// Package refund decides cooling-off refund eligibility on cancellation.
package refund

import (
	"time"

	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
)

// DefaultCoolingOffDays applies when a subscription predates the stored
// window end.
const DefaultCoolingOffDays = 14

type Reason string

const (
	ReasonEligible      Reason = ""
	ReasonMonthlyPlan   Reason = "monthly_plan"
	ReasonWindowElapsed Reason = "window_elapsed"
	ReasonNotActivated  Reason = "not_activated"
	ReasonNoPayment     Reason = "no_payment"
	// ReasonDeferredCancel marks a cancel inside the window that keeps the
	// paid period instead of taking the refund.
	ReasonDeferredCancel Reason = "deferred_cancel"
)

// Evaluation is the refund decision. Ineligibility is a result, not an error.
type Evaluation struct {
	Eligible     bool       `json:"refund_eligible"`
	RefundAmount int64      `json:"refund_amount"`
	Currency     string     `json:"currency,omitempty"`
	Reason       Reason     `json:"reason,omitempty"`
	WindowEndsAt *time.Time `json:"window_ends_at,omitempty"`
	AccessUntil  time.Time  `json:"access_until"`

	// Payment is the record the refund reverses when eligible.
	Payment *invoicedomain.BillingRecord `json:"-"`
}

// Evaluate applies the cooling-off rule: a yearly plan cancelled before the
// end of the fourteenth local day after activation is refunded in full.
// loc anchors local days when the window end was not stored at activation.
func Evaluate(sub subscriptiondomain.Subscription, lastPayment *invoicedomain.BillingRecord, now time.Time, loc *time.Location) Evaluation {
	now = now.UTC()
	accessUntil := now
	if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now) {
		accessUntil = *sub.CurrentPeriodEnd
	}
	ineligible := func(reason Reason, windowEnd *time.Time) Evaluation {
		return Evaluation{Reason: reason, WindowEndsAt: windowEnd, AccessUntil: accessUntil}
	}

	if sub.BillingInterval != subscriptiondomain.IntervalYearly {
		return ineligible(ReasonMonthlyPlan, nil)
	}
	if sub.ActivatedAt == nil {
		return ineligible(ReasonNotActivated, nil)
	}

	windowEnd := WindowEnd(sub, loc)
	if now.After(windowEnd) {
		return ineligible(ReasonWindowElapsed, &windowEnd)
	}
	if lastPayment == nil || lastPayment.Total <= 0 {
		return ineligible(ReasonNoPayment, &windowEnd)
	}

	return Evaluation{
		Eligible:     true,
		RefundAmount: lastPayment.Total,
		Currency:     lastPayment.Currency,
		WindowEndsAt: &windowEnd,
		AccessUntil:  now,
		Payment:      lastPayment,
	}
}

// WindowEnd returns the stored cooling-off end, or derives it from the
// activation instant.
func WindowEnd(sub subscriptiondomain.Subscription, loc *time.Location) time.Time {
	if sub.CoolingOffEndsAt != nil {
		return sub.CoolingOffEndsAt.UTC()
	}
	if sub.ActivatedAt == nil {
		return time.Time{}
	}
	return subscriptiondomain.CoolingOffEnd(*sub.ActivatedAt, DefaultCoolingOffDays, loc)
}
