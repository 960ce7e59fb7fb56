package domain

import (
	"context"
	"net/http"
	"time"

	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
)

const (
	ProviderNative = reconciliationdomain.ProviderNative
	ProviderStripe = reconciliationdomain.ProviderStripe
)

// AdapterConfig carries the per-provider webhook settings.
type AdapterConfig struct {
	Provider      string
	WebhookSecret string
	Tolerance     time.Duration
	Now           func() time.Time
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// PaymentAdapter authenticates and translates one provider's webhook payloads.
// Parse returns ErrEventIgnored for event types the engine does not consume.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (reconciliationdomain.Event, error)
}
