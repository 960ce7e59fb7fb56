package repository

import (
	"context"

	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*catalogdomain.Plan, error) {
	var plan catalogdomain.Plan
	err := db.WithContext(ctx).
		Where("code = ?", code).
		Limit(1).
		Find(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.Code == "" {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]catalogdomain.Plan, error) {
	var plans []catalogdomain.Plan
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("code asc").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
