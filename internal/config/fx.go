package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(provideBillingPolicy),
)

func provideBillingPolicy(cfg Config) (*BillingPolicyHolder, error) {
	return NewBillingPolicyHolder(cfg.BillingDir)
}
