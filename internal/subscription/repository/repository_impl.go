package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByCustomerRef(ctx context.Context, db *gorm.DB, customerRef string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("customer_ref = ?", customerRef).
		Limit(1).
		Find(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// ListDueIDs returns subscriptions with a time-driven transition pending at
// now, oldest deadline first.
func (r *repo) ListDueIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	stmt := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where(
			db.Where("status = ? AND trial_ends_at <= ?", subscriptiondomain.StatusTrialing, now).
				Or("status = ? AND grace_ends_at <= ?", subscriptiondomain.StatusPastDue, now).
				Or("status IN ? AND cancel_at <= ?", []subscriptiondomain.Status{
					subscriptiondomain.StatusActive,
					subscriptiondomain.StatusPastDue,
					subscriptiondomain.StatusUnpaid,
				}, now),
		).
		Order("last_transition_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
