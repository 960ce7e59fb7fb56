package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/nestbill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WriterParams struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      invoicedomain.Repository
	Sequencer invoicedomain.Sequencer
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type writer struct {
	log       *zap.Logger
	genID     *snowflake.Node
	repo      invoicedomain.Repository
	sequencer invoicedomain.Sequencer
	metrics   *obsmetrics.Metrics
}

func NewWriter(p WriterParams) invoicedomain.Writer {
	return &writer{
		log:       p.Log.Named("invoice.writer"),
		genID:     p.GenID,
		repo:      p.Repo,
		sequencer: p.Sequencer,
		metrics:   p.Metrics,
	}
}

// Write numbers and inserts a record. It must be called with the
// transaction that also carries the state change the record belongs to.
func (w *writer) Write(ctx context.Context, tx *gorm.DB, rec invoicedomain.NewRecord) (*invoicedomain.BillingRecord, error) {
	if rec.SubscriptionID == 0 || rec.Type == "" || strings.TrimSpace(rec.Currency) == "" {
		return nil, invoicedomain.ErrInvalidRecord
	}

	record := &invoicedomain.BillingRecord{
		ID:             w.genID.Generate(),
		SubscriptionID: rec.SubscriptionID,
		Type:           rec.Type,
		Subtotal:       rec.Breakdown.Subtotal,
		TaxComponents:  datatypes.NewJSONSlice(rec.Breakdown.Components),
		TaxTotal:       rec.Breakdown.TaxTotal,
		Total:          rec.Breakdown.Total,
		Currency:       strings.ToUpper(strings.TrimSpace(rec.Currency)),
		Status:         invoicedomain.RecordStatusSucceeded,
		Jurisdiction:   rec.Breakdown.Jurisdiction,
		ExternalRef:    optional(rec.ExternalRef),
		SourceEventID:  optional(rec.SourceEventID),
		CreatedAt:      rec.At.UTC(),
	}
	if !record.Balanced() {
		return nil, invoicedomain.ErrTotalMismatch
	}

	alloc, err := w.sequencer.Next(ctx, tx, rec.At)
	if err != nil {
		return nil, err
	}
	record.InvoiceNumber = alloc.Number

	if err := w.repo.Insert(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("insert billing record: %w", err)
	}

	w.metrics.RecordBillingRecord(ctx, string(record.Type))
	w.log.Info("billing record written",
		zap.String("invoice_number", record.InvoiceNumber),
		zap.String("type", string(record.Type)),
		zap.String("subscription_id", record.SubscriptionID.String()),
		zap.Int64("total", record.Total),
	)
	return record, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
