package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type StartTrialRequest struct {
	CustomerRef  string `json:"-"`
	PlanCode     string `json:"plan_code"`
	Jurisdiction string `json:"jurisdiction"`
}

type ConvertRequest struct {
	SubscriptionID   snowflake.ID `json:"-"`
	PaymentMethodRef string       `json:"payment_method_ref"`
}

type CancelRequest struct {
	SubscriptionID snowflake.ID `json:"-"`
	Immediate      bool         `json:"immediate"`
}

// CancelResponse reports the refund decision. An ineligible refund is a
// normal outcome with a reason.
type CancelResponse struct {
	RefundEligible bool       `json:"refund_eligible"`
	RefundAmount   int64      `json:"refund_amount"`
	Currency       string     `json:"currency,omitempty"`
	AccessUntil    time.Time  `json:"access_until"`
	Reason         string     `json:"reason,omitempty"`
	WindowEndsAt   *time.Time `json:"window_ends_at,omitempty"`
	RefundRef      string     `json:"refund_ref,omitempty"`
	Subscription   View       `json:"subscription"`
}
