package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/nestbill/internal/config"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	"github.com/smallbiznis/nestbill/internal/invoice/format"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	Policy *config.BillingPolicyHolder
}

type Sequencer struct {
	policy *config.BillingPolicyHolder
}

func NewSequencer(p Params) invoicedomain.Sequencer {
	return New(p.Policy)
}

func New(policy *config.BillingPolicyHolder) *Sequencer {
	return &Sequencer{policy: policy}
}

// Next increments the counter for the month of at and reads it back. The
// upsert takes the row lock, so a concurrent allocation for the same month
// waits until this transaction ends, and a rollback returns the value.
func (s *Sequencer) Next(ctx context.Context, tx *gorm.DB, at time.Time) (invoicedomain.Allocation, error) {
	at = at.UTC()
	yearMonth := format.YearMonth(at)

	row := invoicedomain.InvoiceSequence{
		YearMonth: yearMonth,
		LastValue: 1,
		UpdatedAt: at,
	}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "year_month"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_value": gorm.Expr("invoice_sequences.last_value + 1"),
			"updated_at": at,
		}),
	}).Create(&row).Error
	if err != nil {
		return invoicedomain.Allocation{}, fmt.Errorf("allocate invoice sequence: %w", err)
	}

	var value int64
	err = tx.WithContext(ctx).Raw(
		`SELECT last_value FROM invoice_sequences WHERE year_month = ?`,
		yearMonth,
	).Scan(&value).Error
	if err != nil {
		return invoicedomain.Allocation{}, fmt.Errorf("read invoice sequence: %w", err)
	}

	prefix := s.policy.Get().InvoicePrefix
	if !format.ValidPrefix(prefix) {
		return invoicedomain.Allocation{}, invoicedomain.ErrInvalidPrefix
	}
	number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, prefix, at, value)
	if err != nil {
		return invoicedomain.Allocation{}, err
	}
	return invoicedomain.Allocation{
		YearMonth: yearMonth,
		Value:     value,
		Number:    number,
	}, nil
}
