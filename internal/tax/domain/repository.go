package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	ListRates(ctx context.Context, db *gorm.DB) ([]TaxRate, error)
}
