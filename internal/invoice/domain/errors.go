package domain

import "errors"

var (
	ErrBillingRecordNotFound = errors.New("billing_record_not_found")
	ErrTotalMismatch         = errors.New("billing_record_total_mismatch")
	ErrInvalidRecord         = errors.New("invalid_billing_record")
	ErrInvalidPrefix         = errors.New("invalid_invoice_prefix")
)
