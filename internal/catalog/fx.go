package catalog

import (
	"github.com/smallbiznis/nestbill/internal/catalog/repository"
	"github.com/smallbiznis/nestbill/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
