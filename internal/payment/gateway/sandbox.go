package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/smallbiznis/nestbill/internal/clock"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
)

// Sandbox settles every charge locally. Charges with DeclinedPaymentMethod
// fail.
type Sandbox struct {
	clock clock.Clock

	mu      sync.Mutex
	charges map[string]paymentdomain.Charge
	refunds map[string]paymentdomain.Refund
}

func NewSandbox(c clock.Clock) *Sandbox {
	return &Sandbox{
		clock:   c,
		charges: map[string]paymentdomain.Charge{},
		refunds: map[string]paymentdomain.Refund{},
	}
}

func (s *Sandbox) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.Charge, error) {
	if err := ctx.Err(); err != nil {
		return paymentdomain.Charge{}, err
	}
	if req.Amount <= 0 || strings.TrimSpace(req.PaymentMethodRef) == "" {
		return paymentdomain.Charge{}, paymentdomain.ErrInvalidPayload
	}
	if req.PaymentMethodRef == paymentdomain.DeclinedPaymentMethod {
		return paymentdomain.Charge{}, paymentdomain.ErrPaymentDeclined
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if charge, ok := s.charges[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return charge, nil
	}
	charge := paymentdomain.Charge{
		ID:               "ch_sandbox_" + uuid.NewString(),
		Amount:           req.Amount,
		Currency:         strings.ToUpper(req.Currency),
		PaymentMethodRef: req.PaymentMethodRef,
		CreatedAt:        s.clock.Now(),
	}
	if req.IdempotencyKey != "" {
		s.charges[req.IdempotencyKey] = charge
	}
	return charge, nil
}

func (s *Sandbox) Refund(ctx context.Context, req paymentdomain.RefundRequest) (paymentdomain.Refund, error) {
	if err := ctx.Err(); err != nil {
		return paymentdomain.Refund{}, err
	}
	if req.Amount <= 0 || strings.TrimSpace(req.PaymentRef) == "" {
		return paymentdomain.Refund{}, paymentdomain.ErrInvalidPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if refund, ok := s.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return refund, nil
	}
	refund := paymentdomain.Refund{
		ID:         "re_sandbox_" + uuid.NewString(),
		PaymentRef: req.PaymentRef,
		Amount:     req.Amount,
		CreatedAt:  s.clock.Now(),
	}
	if req.IdempotencyKey != "" {
		s.refunds[req.IdempotencyKey] = refund
	}
	return refund, nil
}
