package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/nestbill/internal/clock"
	"github.com/smallbiznis/nestbill/internal/config"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSandboxChargeIsIdempotent(t *testing.T) {
	now := time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)
	gw := NewSandbox(clock.NewFakeClock(now))
	req := paymentdomain.ChargeRequest{
		PaymentMethodRef: "pm_card_visa",
		Amount:           1149,
		Currency:         "cad",
		IdempotencyKey:   "key-1",
	}

	first, err := gw.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, first.ID, "ch_sandbox_")
	assert.Equal(t, "CAD", first.Currency)
	assert.Equal(t, now, first.CreatedAt)

	again, err := gw.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	req.IdempotencyKey = "key-2"
	other, err := gw.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSandboxDeclines(t *testing.T) {
	gw := NewSandbox(clock.System())

	_, err := gw.Charge(context.Background(), paymentdomain.ChargeRequest{
		PaymentMethodRef: paymentdomain.DeclinedPaymentMethod,
		Amount:           999,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentDeclined)

	_, err = gw.Charge(context.Background(), paymentdomain.ChargeRequest{PaymentMethodRef: "pm_1"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestSandboxRefund(t *testing.T) {
	gw := NewSandbox(clock.System())
	req := paymentdomain.RefundRequest{PaymentRef: "ch_1", Amount: 11496, IdempotencyKey: "r-1"}

	first, err := gw.Refund(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, first.ID, "re_sandbox_")
	assert.Equal(t, "ch_1", first.PaymentRef)

	again, err := gw.Refund(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = gw.Refund(context.Background(), paymentdomain.RefundRequest{Amount: 1})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestNewSelectsGateway(t *testing.T) {
	params := Params{Log: zap.NewNop(), Clock: clock.System()}

	gw, err := New(params)
	require.NoError(t, err)
	assert.IsType(t, &Sandbox{}, gw)

	params.Cfg.Gateway = config.GatewayConfig{Provider: "stripe"}
	_, err = New(params)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	params.Cfg.Gateway = config.GatewayConfig{Provider: "stripe", StripeSecretKey: "sk_test_123"}
	gw, err = New(params)
	require.NoError(t, err)
	assert.IsType(t, &Stripe{}, gw)

	params.Cfg.Gateway = config.GatewayConfig{Provider: "paypal"}
	_, err = New(params)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
