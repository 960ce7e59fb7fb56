package native

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac-sha256 of t.payload>".
const SignatureHeader = "X-Nestbill-Signature"

const defaultTolerance = 5 * time.Minute

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderNative
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
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Adapter{secret: secret, tolerance: tolerance, now: now}, nil
}

type Adapter struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	header := strings.TrimSpace(headers.Get(SignatureHeader))
	if header == "" {
		return paymentdomain.ErrInvalidSignature
	}
	ts, signatures, err := parseSignature(header)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedAt := time.Unix(ts, 0)
	skew := a.now().Sub(signedAt)
	if skew < 0 {
		skew = -skew
	}
	if skew > a.tolerance {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(a.secret, ts, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (reconciliationdomain.Event, error) {
	var body nativeEvent
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(body.ExternalEventID) == "" || strings.TrimSpace(body.SubscriptionRef) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if body.OccurredAt.IsZero() {
		return nil, paymentdomain.ErrInvalidEvent
	}

	meta := reconciliationdomain.EventMeta{
		EventID:         strings.TrimSpace(body.ExternalEventID),
		Provider:        paymentdomain.ProviderNative,
		SubscriptionRef: strings.TrimSpace(body.SubscriptionRef),
		OccurredAt:      body.OccurredAt.UTC(),
	}
	payment := reconciliationdomain.Payment{
		Amount:     body.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(body.Currency)),
		PaymentRef: strings.TrimSpace(body.PaymentRef),
	}

	switch reconciliationdomain.Kind(strings.ToLower(strings.TrimSpace(body.Kind))) {
	case reconciliationdomain.KindPaymentSucceeded:
		return reconciliationdomain.PaymentSucceeded{
			EventMeta:        meta,
			Payment:          payment,
			PaymentMethodRef: strings.TrimSpace(body.PaymentMethodRef),
		}, nil
	case reconciliationdomain.KindPaymentFailed:
		return reconciliationdomain.PaymentFailed{
			EventMeta:   meta,
			Payment:     payment,
			FailureCode: strings.TrimSpace(body.FailureCode),
		}, nil
	case reconciliationdomain.KindSubscriptionCancelled:
		return reconciliationdomain.SubscriptionCancelled{EventMeta: meta}, nil
	case reconciliationdomain.KindInvoicePaid:
		return reconciliationdomain.InvoicePaid{
			EventMeta:  meta,
			Payment:    payment,
			InvoiceRef: strings.TrimSpace(body.InvoiceRef),
		}, nil
	default:
		return nil, reconciliationdomain.ErrUnknownEventKind
	}
}

// Sign returns the hex v1 signature for payload signed at ts.
func Sign(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds the full header value for payload signed at ts.
func SignatureHeaderValue(secret string, ts int64, payload []byte) string {
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + Sign(secret, ts, payload)
}

type nativeEvent struct {
	ExternalEventID  string    `json:"external_event_id"`
	Kind             string    `json:"kind"`
	SubscriptionRef  string    `json:"subscription_ref"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	PaymentRef       string    `json:"payment_ref"`
	PaymentMethodRef string    `json:"payment_method_ref"`
	FailureCode      string    `json:"failure_code"`
	InvoiceRef       string    `json:"invoice_ref"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func parseSignature(header string) (int64, []string, error) {
	var (
		ts         int64
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, err
			}
			ts = parsed
		case "v1":
			if kv[1] != "" {
				signatures = append(signatures, kv[1])
			}
		}
	}
	if ts == 0 || len(signatures) == 0 {
		return 0, nil, paymentdomain.ErrInvalidSignature
	}
	return ts, signatures, nil
}
