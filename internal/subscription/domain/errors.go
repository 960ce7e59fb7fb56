package domain

import "errors"

var (
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrInvalidTrigger         = errors.New("invalid_trigger")
	ErrInvalidSubscription    = errors.New("invalid_subscription")
	ErrInvalidCustomer        = errors.New("invalid_customer")
	ErrInvalidPaymentMethod   = errors.New("invalid_payment_method")
	ErrSubscriptionNotFound   = errors.New("subscription_not_found")
	ErrSubscriptionExists     = errors.New("subscription_exists")
	ErrTrialAlreadyUsed       = errors.New("trial_already_used")
	ErrVersionConflict        = errors.New("subscription_version_conflict")
	ErrSubscriptionTerminated = errors.New("subscription_terminated")
	ErrRefundNotIssued        = errors.New("refund_not_issued")
)
