package reconciliation

import (
	"github.com/smallbiznis/nestbill/internal/reconciliation/repository"
	"github.com/smallbiznis/nestbill/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
