package payment

import (
	"github.com/smallbiznis/nestbill/internal/payment/adapters"
	"github.com/smallbiznis/nestbill/internal/payment/adapters/native"
	"github.com/smallbiznis/nestbill/internal/payment/adapters/stripe"
	"github.com/smallbiznis/nestbill/internal/payment/gateway"
	"github.com/smallbiznis/nestbill/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			native.NewFactory(),
			stripe.NewFactory(),
		)
	}),
	fx.Provide(gateway.New),
	fx.Provide(webhook.NewService),
)
