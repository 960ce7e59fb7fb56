package webhook

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/payment/adapters"
	"github.com/smallbiznis/nestbill/internal/payment/adapters/native"
	"github.com/smallbiznis/nestbill/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEngine struct {
	events []reconciliationdomain.Event
	err    error
}

func (e *recordingEngine) Handle(ctx context.Context, ev reconciliationdomain.Event) (reconciliationdomain.Result, error) {
	e.events = append(e.events, ev)
	if e.err != nil {
		return reconciliationdomain.Result{}, e.err
	}
	meta := ev.Meta()
	return reconciliationdomain.Result{
		EventID:  meta.EventID,
		Provider: meta.Provider,
		Kind:     ev.Kind(),
		Outcome:  reconciliationdomain.OutcomeApplied,
	}, nil
}

func (e *recordingEngine) StartTrial(context.Context, reconciliationdomain.StartTrialCommand) (subscriptiondomain.View, error) {
	return subscriptiondomain.View{}, nil
}

func (e *recordingEngine) Cancel(context.Context, reconciliationdomain.CancelCommand) (reconciliationdomain.CancelResult, error) {
	return reconciliationdomain.CancelResult{}, nil
}

func (e *recordingEngine) Advance(context.Context, snowflake.ID) (subscriptiondomain.View, error) {
	return subscriptiondomain.View{}, nil
}

func newService(engine *recordingEngine, nativeSecret string) paymentdomain.WebhookService {
	return NewService(Params{
		Log:      zap.NewNop(),
		Engine:   engine,
		Adapters: adapters.NewRegistry(native.NewFactory(), stripe.NewFactory()),
		Cfg: config.Config{Webhook: config.WebhookConfig{
			NativeSecret: nativeSecret,
			Tolerance:    5 * time.Minute,
		}},
	})
}

func signed(secret string, payload []byte) http.Header {
	headers := http.Header{}
	headers.Set(native.SignatureHeader, native.SignatureHeaderValue(secret, time.Now().Unix(), payload))
	return headers
}

const paymentPayload = `{"external_event_id":"evt_1","kind":"payment_succeeded","subscription_ref":"42","amount":999,"currency":"CAD","payment_ref":"ch_1","occurred_at":"2025-10-03T12:00:00Z"}`

func TestIngestWebhookHandsEventToEngine(t *testing.T) {
	engine := &recordingEngine{}
	svc := newService(engine, "secret")

	res, err := svc.IngestWebhook(context.Background(), "Native", []byte(paymentPayload), signed("secret", []byte(paymentPayload)))
	require.NoError(t, err)
	require.NotNil(t, res.Result)
	assert.Equal(t, "native", res.Provider)
	assert.False(t, res.Ignored)
	assert.Equal(t, "evt_1", res.Result.EventID)

	require.Len(t, engine.events, 1)
	assert.Equal(t, reconciliationdomain.KindPaymentSucceeded, engine.events[0].Kind())
}

func TestIngestWebhookRejectsBadSignatureWithoutEngineCall(t *testing.T) {
	engine := &recordingEngine{}
	svc := newService(engine, "secret")

	_, err := svc.IngestWebhook(context.Background(), "native", []byte(paymentPayload), signed("other", []byte(paymentPayload)))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	assert.Empty(t, engine.events)
}

func TestIngestWebhookProviderChecks(t *testing.T) {
	engine := &recordingEngine{}

	_, err := newService(engine, "secret").IngestWebhook(context.Background(), "adyen", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	_, err = newService(engine, "secret").IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	_, err = newService(engine, "").IngestWebhook(context.Background(), "native", []byte(paymentPayload), signed("", []byte(paymentPayload)))
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
	assert.Empty(t, engine.events)
}

func TestIngestWebhookSurfacesEngineErrors(t *testing.T) {
	engine := &recordingEngine{err: subscriptiondomain.ErrSubscriptionNotFound}
	svc := newService(engine, "secret")

	_, err := svc.IngestWebhook(context.Background(), "native", []byte(paymentPayload), signed("secret", []byte(paymentPayload)))
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestIngestWebhookRejectsUnparseablePayload(t *testing.T) {
	engine := &recordingEngine{}
	svc := newService(engine, "secret")
	payload := []byte(`{"kind":"payment_succeeded"}`)

	_, err := svc.IngestWebhook(context.Background(), "native", payload, signed("secret", payload))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
	assert.Empty(t, engine.events)
}
