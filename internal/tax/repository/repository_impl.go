package repository

import (
	"context"

	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() taxdomain.Repository {
	return &repo{}
}

func (r *repo) ListRates(ctx context.Context, db *gorm.DB) ([]taxdomain.TaxRate, error) {
	var rows []taxdomain.TaxRate
	err := db.WithContext(ctx).Raw(
		`SELECT jurisdiction, component, rate, position, timezone, updated_at
		 FROM tax_rates
		 ORDER BY jurisdiction ASC, position ASC`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
