package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	"github.com/smallbiznis/nestbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo invoicedomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo invoicedomain.Repository
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("invoice.service"),
		repo: p.Repo,
	}
}

// History lists records newest first.
func (s *Service) History(ctx context.Context, req invoicedomain.HistoryRequest) (invoicedomain.HistoryResponse, error) {
	page := pagination.NewPage(req.Page.Number, req.Page.Size)

	// fetch one extra row to learn whether another page exists
	items, err := s.repo.ListBySubscription(ctx, s.db, req.SubscriptionID, page.Size+1, page.Offset())
	if err != nil {
		return invoicedomain.HistoryResponse{}, err
	}

	hasMore := len(items) > page.Size
	if hasMore {
		items = items[:page.Size]
	}
	if items == nil {
		items = []invoicedomain.BillingRecord{}
	}

	resp := invoicedomain.HistoryResponse{Records: items}
	resp.Page = page.Number
	resp.PageSize = page.Size
	resp.HasMore = hasMore
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*invoicedomain.BillingRecord, error) {
	record, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, invoicedomain.ErrBillingRecordNotFound
	}
	return record, nil
}
