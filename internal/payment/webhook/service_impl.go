package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Engine   reconciliationdomain.Engine
	Adapters *adapters.Registry
	Cfg      config.Config
}

type Service struct {
	log      *zap.Logger
	engine   reconciliationdomain.Engine
	adapters *adapters.Registry
	secrets  map[string]string
	cfg      config.WebhookConfig
}

func NewService(p Params) paymentdomain.WebhookService {
	log := p.Log.Named("payment.webhook")
	log.Info("webhook providers registered", zap.Strings("providers", p.Adapters.Providers()))
	return &Service{
		log:      log,
		engine:   p.Engine,
		adapters: p.Adapters,
		secrets: map[string]string{
			paymentdomain.ProviderNative: p.Cfg.Webhook.NativeSecret,
			paymentdomain.ProviderStripe: p.Cfg.Webhook.StripeSecret,
		},
		cfg: p.Cfg.Webhook,
	}
}

// IngestWebhook verifies and parses one provider delivery, then hands the
// event to the reconciliation engine. Nothing is recorded when verification
// or parsing fails.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.IngestResult{}, paymentdomain.ErrProviderNotFound
	}
	secret := strings.TrimSpace(s.secrets[provider])
	if secret == "" {
		s.log.Warn("webhook secret not configured", zap.String("provider", provider))
		return paymentdomain.IngestResult{}, paymentdomain.ErrProviderNotFound
	}

	adapter, err := s.adapters.Adapter(provider, paymentdomain.AdapterConfig{
		WebhookSecret: secret,
		Tolerance:     s.cfg.Tolerance,
	})
	if err != nil {
		return paymentdomain.IngestResult{}, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider), zap.Error(err))
		return paymentdomain.IngestResult{}, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("webhook event ignored", zap.String("provider", provider))
			return paymentdomain.IngestResult{Provider: provider, Ignored: true}, nil
		}
		return paymentdomain.IngestResult{}, err
	}

	result, err := s.engine.Handle(ctx, event)
	if err != nil {
		return paymentdomain.IngestResult{}, err
	}
	return paymentdomain.IngestResult{Provider: provider, Result: &result}, nil
}
