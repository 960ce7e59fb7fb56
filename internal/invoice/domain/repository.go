package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is append-only: there is no update or delete path.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *BillingRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingRecord, error)
	FindByExternalRef(ctx context.Context, db *gorm.DB, recordType RecordType, ref string) (*BillingRecord, error)
	LatestPayment(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*BillingRecord, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, limit, offset int) ([]BillingRecord, error)
}
