package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Plan, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Plan, error)
}

type Service interface {
	Get(ctx context.Context, code string) (Plan, error)
	List(ctx context.Context) ([]Plan, error)
}
