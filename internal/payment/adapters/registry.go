package adapters

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/nestbill/internal/payment/domain"
)

// Registry resolves a provider name to its webhook adapter. Adapters are
// built once per provider and rebuilt only when the secret or tolerance
// changes.
type Registry struct {
	factories map[string]domain.AdapterFactory

	mu    sync.Mutex
	built map[string]builtAdapter
}

type builtAdapter struct {
	secret    string
	tolerance time.Duration
	adapter   domain.PaymentAdapter
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		built:     map[string]builtAdapter{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if provider := normalize(factory.Provider()); provider != "" {
			registry.factories[provider] = factory
		}
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

// Providers lists the registered provider names in order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.factories))
}

// Adapter returns the provider's adapter for cfg. A cfg with its own clock
// bypasses the cache.
func (r *Registry) Adapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cfg.Provider = provider
	if cfg.Now != nil {
		return factory.NewAdapter(cfg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.built[provider]; ok && cached.secret == cfg.WebhookSecret && cached.tolerance == cfg.Tolerance {
		return cached.adapter, nil
	}
	adapter, err := factory.NewAdapter(cfg)
	if err != nil {
		return nil, err
	}
	r.built[provider] = builtAdapter{secret: cfg.WebhookSecret, tolerance: cfg.Tolerance, adapter: adapter}
	return adapter, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
