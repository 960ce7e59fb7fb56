package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nestbill/pkg/db/pagination"
	"gorm.io/gorm"
)

// Allocation is one invoice number taken from the monthly sequence.
type Allocation struct {
	YearMonth string
	Value     int64
	Number    string
}

// Sequencer hands out gapless invoice numbers. Next must run inside the
// transaction that persists the record using the number.
type Sequencer interface {
	Next(ctx context.Context, tx *gorm.DB, at time.Time) (Allocation, error)
}

// Writer persists billing records inside a caller-owned transaction.
type Writer interface {
	Write(ctx context.Context, tx *gorm.DB, rec NewRecord) (*BillingRecord, error)
}

type HistoryRequest struct {
	SubscriptionID snowflake.ID
	Page           pagination.Page
}

type HistoryResponse struct {
	pagination.PageMeta
	Records []BillingRecord `json:"billing_records"`
}

// Service is the read side of billing records.
type Service interface {
	History(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*BillingRecord, error)
}
