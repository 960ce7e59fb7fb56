package service

import (
	"context"
	"strings"

	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo catalogdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo catalogdomain.Repository
}

func NewService(p Params) catalogdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, code string) (catalogdomain.Plan, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return catalogdomain.Plan{}, catalogdomain.ErrPlanNotFound
	}
	plan, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return catalogdomain.Plan{}, err
	}
	if plan == nil || !plan.Active {
		return catalogdomain.Plan{}, catalogdomain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) List(ctx context.Context) ([]catalogdomain.Plan, error) {
	return s.repo.ListActive(ctx, s.db)
}
