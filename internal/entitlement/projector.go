// Package entitlement derives feature access from subscription state.
package entitlement

import (
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
)

const (
	ReasonNoSubscription = "no_premium_subscription"
	ReasonTrial          = "trial"
	ReasonPaid           = "paid"
	ReasonGracePeriod    = "grace_period"
	ReasonUnpaid         = "unpaid"
	ReasonCancelled      = "cancelled"
)

// Project maps a lifecycle state onto the features the customer may use.
// PAST_DUE keeps full access for the grace period.
func Project(status subscriptiondomain.Status, planFeatures []string) subscriptiondomain.Access {
	switch status {
	case subscriptiondomain.StatusTrialing:
		return full(planFeatures, ReasonTrial)
	case subscriptiondomain.StatusActive:
		return full(planFeatures, ReasonPaid)
	case subscriptiondomain.StatusPastDue:
		return full(planFeatures, ReasonGracePeriod)
	case subscriptiondomain.StatusUnpaid:
		return none(ReasonUnpaid)
	case subscriptiondomain.StatusCancelled:
		return none(ReasonCancelled)
	default:
		return none(ReasonNoSubscription)
	}
}

func full(features []string, reason string) subscriptiondomain.Access {
	out := make([]string, len(features))
	copy(out, features)
	return subscriptiondomain.Access{
		Level:    subscriptiondomain.AccessFull,
		Features: out,
		Reason:   reason,
	}
}

func none(reason string) subscriptiondomain.Access {
	return subscriptiondomain.Access{
		Level:    subscriptiondomain.AccessNone,
		Features: []string{},
		Reason:   reason,
	}
}
