package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the read side of subscriptions. Writes belong to the
// reconciliation store.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByCustomerRef(ctx context.Context, db *gorm.DB, customerRef string) (*Subscription, error)
	ListDueIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
}
