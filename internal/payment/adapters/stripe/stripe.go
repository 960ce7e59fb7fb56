package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// MetadataSubscriptionID is the metadata key that links processor objects to
// a subscription.
const MetadataSubscriptionID = "subscription_id"

const defaultTolerance = 5 * time.Minute

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderStripe
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &Adapter{webhookSecret: secret, tolerance: tolerance}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.webhookSecret, a.tolerance); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (reconciliationdomain.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch event.Type {
	case "payment_intent.succeeded":
		return parsePaymentIntent(event)
	case "invoice.paid":
		return parseInvoice(event, reconciliationdomain.KindInvoicePaid)
	case "invoice.payment_failed":
		return parseInvoice(event, reconciliationdomain.KindPaymentFailed)
	case "customer.subscription.deleted":
		return parseSubscriptionDeleted(event)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func parsePaymentIntent(event stripe.Event) (reconciliationdomain.Event, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	// Intents created outside the upgrade flow carry no subscription link.
	subscriptionRef := readMetadataValue(intent.Metadata, MetadataSubscriptionID)
	if subscriptionRef == "" {
		return nil, paymentdomain.ErrEventIgnored
	}

	amount := intent.AmountReceived
	if amount == 0 {
		amount = intent.Amount
	}
	var methodRef string
	if intent.PaymentMethod != nil {
		methodRef = intent.PaymentMethod.ID
	}

	return reconciliationdomain.PaymentSucceeded{
		EventMeta: meta(event, subscriptionRef, intent.Created),
		Payment: reconciliationdomain.Payment{
			Amount:     amount,
			Currency:   strings.ToUpper(string(intent.Currency)),
			PaymentRef: intent.ID,
		},
		PaymentMethodRef: methodRef,
	}, nil
}

func parseInvoice(event stripe.Event, kind reconciliationdomain.Kind) (reconciliationdomain.Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	subscriptionRef := invoice.subscriptionRef()
	if subscriptionRef == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	paymentRef := strings.TrimSpace(invoice.PaymentIntent)
	if paymentRef == "" {
		paymentRef = invoice.ID
	}
	payment := reconciliationdomain.Payment{
		Currency:   strings.ToUpper(strings.TrimSpace(invoice.Currency)),
		PaymentRef: paymentRef,
	}
	created := invoice.Created

	if kind == reconciliationdomain.KindPaymentFailed {
		payment.Amount = invoice.AmountDue
		return reconciliationdomain.PaymentFailed{
			EventMeta: meta(event, subscriptionRef, created),
			Payment:   payment,
		}, nil
	}
	payment.Amount = invoice.AmountPaid
	return reconciliationdomain.InvoicePaid{
		EventMeta:  meta(event, subscriptionRef, created),
		Payment:    payment,
		InvoiceRef: invoice.ID,
	}, nil
}

func parseSubscriptionDeleted(event stripe.Event) (reconciliationdomain.Event, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	subscriptionRef := readMetadataValue(sub.Metadata, MetadataSubscriptionID)
	if subscriptionRef == "" {
		subscriptionRef = strings.TrimSpace(sub.ID)
	}
	if subscriptionRef == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return reconciliationdomain.SubscriptionCancelled{
		EventMeta: meta(event, subscriptionRef, sub.CanceledAt),
	}, nil
}

// stripeInvoice holds the invoice fields read from the webhook object. The
// payment_intent field is absent on newer API versions.
type stripeInvoice struct {
	ID            string            `json:"id"`
	AmountPaid    int64             `json:"amount_paid"`
	AmountDue     int64             `json:"amount_due"`
	Currency      string            `json:"currency"`
	Created       int64             `json:"created"`
	Subscription  string            `json:"subscription"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i stripeInvoice) subscriptionRef() string {
	if ref := readMetadataValue(i.Metadata, MetadataSubscriptionID); ref != "" {
		return ref
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		details := i.Parent.SubscriptionDetails
		if ref := readMetadataValue(details.Metadata, MetadataSubscriptionID); ref != "" {
			return ref
		}
		if ref := strings.TrimSpace(details.Subscription); ref != "" {
			return ref
		}
	}
	return strings.TrimSpace(i.Subscription)
}

func meta(event stripe.Event, subscriptionRef string, objectCreated int64) reconciliationdomain.EventMeta {
	return reconciliationdomain.EventMeta{
		EventID:         event.ID,
		Provider:        paymentdomain.ProviderStripe,
		SubscriptionRef: subscriptionRef,
		OccurredAt:      timestamp(event.Created, objectCreated),
	}
}

func timestamp(primary int64, fallback int64) time.Time {
	if primary > 0 {
		return time.Unix(primary, 0).UTC()
	}
	if fallback > 0 {
		return time.Unix(fallback, 0).UTC()
	}
	return time.Now().UTC()
}

func readMetadataValue(metadata map[string]string, key string) string {
	if metadata == nil {
		return ""
	}
	return strings.TrimSpace(metadata[key])
}
