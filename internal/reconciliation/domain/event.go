package domain

import (
	"strings"
	"time"
)

type Kind string

const (
	KindPaymentSucceeded      Kind = "payment_succeeded"
	KindPaymentFailed         Kind = "payment_failed"
	KindSubscriptionCancelled Kind = "subscription_cancelled"
	KindInvoicePaid           Kind = "invoice_paid"
)

const (
	ProviderNative   = "native"
	ProviderStripe   = "stripe"
	ProviderInternal = "internal"
)

// EventMeta is common to every processor event.
type EventMeta struct {
	EventID         string    `validate:"required,max=255"`
	Provider        string    `validate:"required,max=32"`
	SubscriptionRef string    `validate:"required,max=255"`
	OccurredAt      time.Time `validate:"required"`
}

func (m EventMeta) Meta() EventMeta { return m }

// Event is the closed set of processor events the engine understands. The
// unexported marker keeps other packages from adding variants.
type Event interface {
	Meta() EventMeta
	Kind() Kind
	isEvent()
}

// Payment carries the money fields shared by financial events.
type Payment struct {
	Amount     int64  `validate:"gte=0"`
	Currency   string `validate:"omitempty,len=3"`
	PaymentRef string `validate:"max=255"`
}

type PaymentSucceeded struct {
	EventMeta
	Payment

	PaymentMethodRef string `validate:"max=255"`
}

type PaymentFailed struct {
	EventMeta
	Payment

	FailureCode string `validate:"max=64"`
}

type SubscriptionCancelled struct {
	EventMeta
}

type InvoicePaid struct {
	EventMeta
	Payment

	InvoiceRef string `validate:"max=255"`
}

func (PaymentSucceeded) Kind() Kind      { return KindPaymentSucceeded }
func (PaymentFailed) Kind() Kind         { return KindPaymentFailed }
func (SubscriptionCancelled) Kind() Kind { return KindSubscriptionCancelled }
func (InvoicePaid) Kind() Kind           { return KindInvoicePaid }

func (PaymentSucceeded) isEvent()      {}
func (PaymentFailed) isEvent()         {}
func (SubscriptionCancelled) isEvent() {}
func (InvoicePaid) isEvent()           {}

// PaymentOf returns the payment fields of financial events.
func PaymentOf(ev Event) (Payment, bool) {
	switch e := ev.(type) {
	case PaymentSucceeded:
		return e.Payment, true
	case PaymentFailed:
		return e.Payment, true
	case InvoicePaid:
		return e.Payment, true
	default:
		return Payment{}, false
	}
}

// NormalizeProvider lower-cases a provider name.
func NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
