package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	GatewaySandbox = "sandbox"
	GatewayStripe  = "stripe"

	// DeclinedPaymentMethod always fails in the sandbox gateway.
	DeclinedPaymentMethod = "pm_card_declined"
)

type ChargeRequest struct {
	SubscriptionID   snowflake.ID
	CustomerRef      string
	PaymentMethodRef string
	Amount           int64
	Currency         string
	IdempotencyKey   string
}

type Charge struct {
	ID               string
	Amount           int64
	Currency         string
	PaymentMethodRef string
	CreatedAt        time.Time
}

type RefundRequest struct {
	SubscriptionID snowflake.ID
	PaymentRef     string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

type Refund struct {
	ID         string
	PaymentRef string
	Amount     int64
	CreatedAt  time.Time
}

//go:generate mockgen -source=gateway.go -destination=./mocks/mock_gateway.go -package=mocks

// Gateway issues charges and refunds at the processor. Repeating a call with
// the same idempotency key returns the first result.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
}
