package authorization

import (
	"context"
	"errors"
)

// Roles known to the policy. Admin inherits compliance and customer.
const (
	RoleCustomer   = "customer"
	RoleCompliance = "compliance"
	RoleAdmin      = "admin"
)

const (
	ObjectSubscription  = "subscription"
	ObjectBillingRecord = "billing_record"
	ObjectPricing       = "pricing"
	ObjectAuditLog      = "audit_log"
)

const (
	ActionSubscriptionStartTrial = "subscription.start_trial"
	ActionSubscriptionConvert    = "subscription.convert"
	ActionSubscriptionCancel     = "subscription.cancel"
	ActionSubscriptionView       = "subscription.view"

	ActionBillingRecordView    = "billing_record.view"
	ActionBillingRecordReceipt = "billing_record.receipt"

	ActionPricingQuote = "pricing.quote"

	ActionAuditLogView = "audit_log.view"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	// Authorize returns nil when role may perform action on object.
	Authorize(ctx context.Context, role string, object string, action string) error
}
