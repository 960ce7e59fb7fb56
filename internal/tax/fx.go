package tax

import (
	"github.com/smallbiznis/nestbill/internal/tax/ratecache"
	"github.com/smallbiznis/nestbill/internal/tax/repository"
	"github.com/smallbiznis/nestbill/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(repository.Provide),
	fx.Provide(ratecache.Provide),
	fx.Provide(service.NewService),
)
