package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"gorm.io/gorm"
)

// Store is the write side of subscriptions and the processed-event ledger.
// Every method runs on the caller's transaction.
type Store interface {
	LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error)
	LockByExternalRef(ctx context.Context, tx *gorm.DB, ref string) (*subscriptiondomain.Subscription, error)
	LockByCustomerRef(ctx context.Context, tx *gorm.DB, customerRef string) (*subscriptiondomain.Subscription, error)
	Insert(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error
	// Update writes sub if its stored version still equals expected and bumps
	// sub.Version. A stale version yields ErrVersionConflict.
	Update(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, expected int64) error

	FindEvent(ctx context.Context, tx *gorm.DB, provider, eventID string) (*ProcessedEvent, error)
	InsertEvent(ctx context.Context, tx *gorm.DB, rec *ProcessedEvent) error
}
