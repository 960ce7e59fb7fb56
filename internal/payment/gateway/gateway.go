package gateway

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/nestbill/internal/clock"
	"github.com/smallbiznis/nestbill/internal/config"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

// New selects the outbound gateway named by PAYMENT_GATEWAY.
func New(p Params) (paymentdomain.Gateway, error) {
	log := p.Log.Named("payment.gateway")
	switch strings.ToLower(strings.TrimSpace(p.Cfg.Gateway.Provider)) {
	case "", paymentdomain.GatewaySandbox:
		if p.Cfg.IsProduction() {
			log.Warn("sandbox payment gateway in production")
		}
		return NewSandbox(p.Clock), nil
	case paymentdomain.GatewayStripe:
		return NewStripe(p.Cfg.Gateway.StripeSecretKey, p.Clock, log)
	default:
		return nil, fmt.Errorf("%w: gateway %q", paymentdomain.ErrInvalidConfig, p.Cfg.Gateway.Provider)
	}
}
