package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() reconciliationdomain.Store {
	return &repo{}
}

// forUpdate adds a row lock. sqlite has no row locks and serialises writers
// on its own.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func (r *repo) lockWhere(ctx context.Context, tx *gorm.DB, query string, arg any) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := forUpdate(tx.WithContext(ctx)).
		Where(query, arg).
		Limit(1).
		Find(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.lockWhere(ctx, tx, "id = ?", id)
}

func (r *repo) LockByExternalRef(ctx context.Context, tx *gorm.DB, ref string) (*subscriptiondomain.Subscription, error) {
	if ref == "" {
		return nil, nil
	}
	return r.lockWhere(ctx, tx, "external_subscription_ref = ?", ref)
}

func (r *repo) LockByCustomerRef(ctx context.Context, tx *gorm.DB, customerRef string) (*subscriptiondomain.Subscription, error) {
	if customerRef == "" {
		return nil, nil
	}
	return r.lockWhere(ctx, tx, "customer_ref = ?", customerRef)
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error {
	if sub == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(sub).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, expected int64) error {
	next := expected + 1
	result := tx.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET status = ?, plan_code = ?, billing_interval = ?, jurisdiction = ?, currency = ?, amount = ?,
			trial_ends_at = ?, cooling_off_ends_at = ?, grace_ends_at = ?,
			current_period_start = ?, current_period_end = ?, cancel_at = ?,
			activated_at = ?, cancelled_at = ?, trial_consumed = ?, last_transition_at = ?,
			external_customer_ref = ?, external_subscription_ref = ?, payment_method_ref = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		sub.Status, sub.PlanCode, sub.BillingInterval, sub.Jurisdiction, sub.Currency, sub.Amount,
		sub.TrialEndsAt, sub.CoolingOffEndsAt, sub.GraceEndsAt,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAt,
		sub.ActivatedAt, sub.CancelledAt, sub.TrialConsumed, sub.LastTransitionAt,
		sub.ExternalCustomerRef, sub.ExternalSubscriptionRef, sub.PaymentMethodRef,
		next, sub.UpdatedAt,
		sub.ID, expected,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return subscriptiondomain.ErrVersionConflict
	}
	sub.Version = next
	return nil
}

func (r *repo) FindEvent(ctx context.Context, tx *gorm.DB, provider, eventID string) (*reconciliationdomain.ProcessedEvent, error) {
	var rec reconciliationdomain.ProcessedEvent
	err := tx.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.EventID == "" {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) InsertEvent(ctx context.Context, tx *gorm.DB, rec *reconciliationdomain.ProcessedEvent) error {
	if rec == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(rec).Error
}
