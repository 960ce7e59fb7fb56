package migration

import (
	"context"

	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, policy *config.BillingPolicyHolder, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		ctx := context.Background()
		if err := seed.EnsureTaxRates(ctx, conn); err != nil {
			return err
		}
		if err := seed.EnsurePlans(ctx, conn, policy.Get().Plans); err != nil {
			return err
		}

		log.Named("migrations").Info("schema ready", zap.String("type", cfg.DBType))
		return nil
	}),
)
