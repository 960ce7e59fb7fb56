package native

import (
	"context"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "nbwh_test"

func newAdapter(t *testing.T, now time.Time) paymentdomain.PaymentAdapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		WebhookSecret: testSecret,
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)
	return adapter
}

func TestNewAdapterRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{WebhookSecret: "  "})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestVerify(t *testing.T) {
	now := time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"external_event_id":"evt_1","kind":"payment_succeeded"}`)
	adapter := newAdapter(t, now)

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{name: "valid", header: SignatureHeaderValue(testSecret, now.Unix(), payload)},
		{name: "within tolerance", header: SignatureHeaderValue(testSecret, now.Add(-4*time.Minute).Unix(), payload)},
		{name: "stale", header: SignatureHeaderValue(testSecret, now.Add(-6*time.Minute).Unix(), payload), wantErr: true},
		{name: "future", header: SignatureHeaderValue(testSecret, now.Add(6*time.Minute).Unix(), payload), wantErr: true},
		{name: "wrong secret", header: SignatureHeaderValue("other", now.Unix(), payload), wantErr: true},
		{name: "missing", header: "", wantErr: true},
		{name: "malformed", header: "v1=abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.header != "" {
				headers.Set(SignatureHeader, tt.header)
			}
			err := adapter.Verify(context.Background(), payload, headers)
			if tt.wantErr {
				assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	now := time.Now()
	adapter := newAdapter(t, now)
	headers := http.Header{}
	headers.Set(SignatureHeader, SignatureHeaderValue(testSecret, now.Unix(), []byte(`{"amount":100}`)))

	err := adapter.Verify(context.Background(), []byte(`{"amount":1}`), headers)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestParse(t *testing.T) {
	adapter := newAdapter(t, time.Now())
	occurred := time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)

	t.Run("payment succeeded", func(t *testing.T) {
		ev, err := adapter.Parse(context.Background(), []byte(`{
			"external_event_id":"evt_1","kind":"payment_succeeded","subscription_ref":"1234",
			"amount":999,"currency":"cad","payment_ref":"ch_1","payment_method_ref":"pm_1",
			"occurred_at":"2025-10-03T12:00:00Z"}`))
		require.NoError(t, err)
		got, ok := ev.(reconciliationdomain.PaymentSucceeded)
		require.True(t, ok)
		assert.Equal(t, "evt_1", got.EventID)
		assert.Equal(t, paymentdomain.ProviderNative, got.Provider)
		assert.Equal(t, "1234", got.SubscriptionRef)
		assert.Equal(t, int64(999), got.Amount)
		assert.Equal(t, "CAD", got.Currency)
		assert.Equal(t, "ch_1", got.PaymentRef)
		assert.Equal(t, "pm_1", got.PaymentMethodRef)
		assert.True(t, got.OccurredAt.Equal(occurred))
	})

	t.Run("each kind", func(t *testing.T) {
		kinds := map[string]reconciliationdomain.Kind{
			"payment_failed":         reconciliationdomain.KindPaymentFailed,
			"subscription_cancelled": reconciliationdomain.KindSubscriptionCancelled,
			"invoice_paid":           reconciliationdomain.KindInvoicePaid,
		}
		for raw, want := range kinds {
			ev, err := adapter.Parse(context.Background(), []byte(`{"external_event_id":"evt","kind":"`+raw+`","subscription_ref":"1","occurred_at":"2025-10-03T12:00:00Z"}`))
			require.NoError(t, err, raw)
			assert.Equal(t, want, ev.Kind())
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := adapter.Parse(context.Background(), []byte(`{"external_event_id":"evt","kind":"refund_issued","subscription_ref":"1","occurred_at":"2025-10-03T12:00:00Z"}`))
		assert.ErrorIs(t, err, reconciliationdomain.ErrUnknownEventKind)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := adapter.Parse(context.Background(), []byte(`{"kind":"payment_failed","subscription_ref":"1","occurred_at":"2025-10-03T12:00:00Z"}`))
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
		_, err = adapter.Parse(context.Background(), []byte(`{"external_event_id":"evt","kind":"payment_failed","subscription_ref":"1"}`))
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := adapter.Parse(context.Background(), []byte(`nope`))
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
	})
}
