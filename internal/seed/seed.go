package seed

import (
	"context"
	"errors"
	"time"

	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	"github.com/smallbiznis/nestbill/internal/config"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureTaxRates inserts the built-in rate table. Rows already present are
// left alone so operator edits survive restarts.
func EnsureTaxRates(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	now := time.Now().UTC()
	rates := taxdomain.DefaultRates()
	for i := range rates {
		rates[i].UpdatedAt = now
	}

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rates).Error
}

// EnsurePlans inserts the configured catalog, or the default premium plans
// when none are configured.
func EnsurePlans(ctx context.Context, db *gorm.DB, seeds []config.PlanSeed) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	plans, err := catalogdomain.PlansFromSeeds(seeds, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		return nil
	}

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&plans).Error
}
