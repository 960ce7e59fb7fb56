// Package domain contains the subscription model and its lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusFree      Status = "FREE"
	StatusTrialing  Status = "TRIALING"
	StatusActive    Status = "ACTIVE"
	StatusPastDue   Status = "PAST_DUE"
	StatusUnpaid    Status = "UNPAID"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusFree, StatusTrialing, StatusActive, StatusPastDue, StatusUnpaid, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCancelled
}

// Interval is the billing period length of a plan.
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

func (i Interval) Valid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// Subscription is the per-customer billing agreement. Rows are written only
// by the reconciliation unit of work; every write bumps Version.
type Subscription struct {
	ID                      snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerRef             string       `gorm:"type:text;not null;uniqueIndex" json:"customer_ref"`
	Status                  Status       `gorm:"type:text;not null;index" json:"status"`
	PlanCode                string       `gorm:"type:text;not null" json:"plan_code"`
	BillingInterval         Interval     `gorm:"type:text;not null" json:"billing_interval"`
	Jurisdiction            string       `gorm:"type:text;not null" json:"jurisdiction"`
	Currency                string       `gorm:"type:text;not null" json:"currency"`
	Amount                  int64        `gorm:"not null" json:"amount"`
	TrialEndsAt             *time.Time   `json:"trial_ends_at,omitempty"`
	CoolingOffEndsAt        *time.Time   `json:"cooling_off_ends_at,omitempty"`
	GraceEndsAt             *time.Time   `json:"grace_ends_at,omitempty"`
	CurrentPeriodStart      *time.Time   `json:"current_period_start,omitempty"`
	CurrentPeriodEnd        *time.Time   `json:"current_period_end,omitempty"`
	CancelAt                *time.Time   `gorm:"index" json:"cancel_at,omitempty"`
	ActivatedAt             *time.Time   `json:"activated_at,omitempty"`
	CancelledAt             *time.Time   `json:"cancelled_at,omitempty"`
	TrialConsumed           bool         `gorm:"not null;default:false" json:"trial_consumed"`
	LastTransitionAt        time.Time    `gorm:"not null" json:"last_transition_at"`
	ExternalCustomerRef     *string      `gorm:"type:text" json:"external_customer_ref,omitempty"`
	ExternalSubscriptionRef *string      `gorm:"type:text;uniqueIndex" json:"external_subscription_ref,omitempty"`
	PaymentMethodRef        *string      `gorm:"type:text" json:"-"`
	Version                 int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt               time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time    `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Snapshot is the audited projection of a subscription.
func (s Subscription) Snapshot() map[string]any {
	return map[string]any{
		"status":               string(s.Status),
		"plan_code":            s.PlanCode,
		"billing_interval":     string(s.BillingInterval),
		"jurisdiction":         s.Jurisdiction,
		"amount":               s.Amount,
		"trial_ends_at":        formatTime(s.TrialEndsAt),
		"cooling_off_ends_at":  formatTime(s.CoolingOffEndsAt),
		"grace_ends_at":        formatTime(s.GraceEndsAt),
		"current_period_start": formatTime(s.CurrentPeriodStart),
		"current_period_end":   formatTime(s.CurrentPeriodEnd),
		"cancel_at":            formatTime(s.CancelAt),
		"activated_at":         formatTime(s.ActivatedAt),
		"cancelled_at":         formatTime(s.CancelledAt),
		"trial_consumed":       s.TrialConsumed,
		"payment_method_ref":   stringValue(s.PaymentMethodRef),
		"version":              s.Version,
	}
}

func stringValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// Access is the derived feature-access view of a subscription.
type Access struct {
	Level    AccessLevel `json:"level"`
	Features []string    `json:"features"`
	Reason   string      `json:"reason,omitempty"`
}

type AccessLevel string

const (
	AccessNone AccessLevel = "none"
	AccessFull AccessLevel = "full"
)

// View is a subscription together with its current access.
type View struct {
	Subscription
	Access Access `json:"access"`
}
