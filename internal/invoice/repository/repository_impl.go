package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *invoicedomain.BillingRecord) error {
	if record == nil {
		return nil
	}
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.BillingRecord, error) {
	var record invoicedomain.BillingRecord
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) FindByExternalRef(ctx context.Context, db *gorm.DB, recordType invoicedomain.RecordType, ref string) (*invoicedomain.BillingRecord, error) {
	if ref == "" {
		return nil, nil
	}
	var record invoicedomain.BillingRecord
	err := db.WithContext(ctx).
		Where("type = ? AND external_ref = ?", recordType, ref).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) LatestPayment(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*invoicedomain.BillingRecord, error) {
	var record invoicedomain.BillingRecord
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND type = ? AND status = ?",
			subscriptionID,
			invoicedomain.RecordTypePayment,
			invoicedomain.RecordStatusSucceeded,
		).
		Order("created_at desc, id desc").
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, limit, offset int) ([]invoicedomain.BillingRecord, error) {
	var records []invoicedomain.BillingRecord
	stmt := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if offset > 0 {
		stmt = stmt.Offset(offset)
	}
	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
