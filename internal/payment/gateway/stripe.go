package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/nestbill/internal/clock"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"go.uber.org/zap"
)

const metadataSubscriptionID = "subscription_id"

// Stripe confirms off-session PaymentIntents and refunds them.
type Stripe struct {
	intents *paymentintent.Client
	refunds *refund.Client
	clock   clock.Clock
	log     *zap.Logger
}

func NewStripe(secretKey string, c clock.Clock, log *zap.Logger) (*Stripe, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("%w: stripe secret key", paymentdomain.ErrInvalidConfig)
	}
	backend := stripe.GetBackend(stripe.APIBackend)
	return &Stripe{
		intents: &paymentintent.Client{B: backend, Key: secretKey},
		refunds: &refund.Client{B: backend, Key: secretKey},
		clock:   c,
		log:     log,
	}, nil
}

func (s *Stripe) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata(metadataSubscriptionID, req.SubscriptionID.String())
	params.AddMetadata("customer_ref", req.CustomerRef)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := s.intents.New(params)
	if err != nil {
		return paymentdomain.Charge{}, s.classify("charge", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		s.log.Warn("payment intent not settled",
			zap.String("payment_intent", intent.ID),
			zap.String("status", string(intent.Status)),
		)
		return paymentdomain.Charge{}, paymentdomain.ErrPaymentDeclined
	}

	return paymentdomain.Charge{
		ID:               intent.ID,
		Amount:           intent.Amount,
		Currency:         strings.ToUpper(string(intent.Currency)),
		PaymentMethodRef: req.PaymentMethodRef,
		CreatedAt:        created(intent.Created, s.clock),
	}, nil
}

func (s *Stripe) Refund(ctx context.Context, req paymentdomain.RefundRequest) (paymentdomain.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentRef),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	params.AddMetadata(metadataSubscriptionID, req.SubscriptionID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := s.refunds.New(params)
	if err != nil {
		return paymentdomain.Refund{}, s.classify("refund", err)
	}
	return paymentdomain.Refund{
		ID:         r.ID,
		PaymentRef: req.PaymentRef,
		Amount:     r.Amount,
		CreatedAt:  created(r.Created, s.clock),
	}, nil
}

func (s *Stripe) classify(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		s.log.Warn("stripe request failed",
			zap.String("op", op),
			zap.String("type", string(stripeErr.Type)),
			zap.String("code", string(stripeErr.Code)),
			zap.String("request_id", stripeErr.RequestID),
		)
		if stripeErr.Type == stripe.ErrorTypeCard {
			return fmt.Errorf("%w: %s", paymentdomain.ErrPaymentDeclined, stripeErr.Code)
		}
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %s", paymentdomain.ErrGatewayUnavailable, stripeErr.Msg)
		}
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}

func created(unix int64, c clock.Clock) time.Time {
	if unix > 0 {
		return time.Unix(unix, 0).UTC()
	}
	return c.Now()
}
