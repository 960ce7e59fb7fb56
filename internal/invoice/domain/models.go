// Package domain contains persistence models for billing records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"gorm.io/datatypes"
)

// RecordType classifies the money movement a record represents.
type RecordType string

const (
	RecordTypePayment    RecordType = "PAYMENT"
	RecordTypeRefund     RecordType = "REFUND"
	RecordTypeAdjustment RecordType = "ADJUSTMENT"
)

type RecordStatus string

const (
	RecordStatusSucceeded RecordStatus = "SUCCEEDED"
	RecordStatusPending   RecordStatus = "PENDING"
)

// BillingRecord is an immutable, numbered financial record. Refunds carry
// negative amounts.
type BillingRecord struct {
	ID             snowflake.ID                                   `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID                                   `gorm:"not null;index" json:"subscription_id"`
	InvoiceNumber  string                                         `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	Type           RecordType                                     `gorm:"type:text;not null;uniqueIndex:ux_billing_records_type_external_ref,priority:1" json:"type"`
	Subtotal       int64                                          `gorm:"not null" json:"subtotal"`
	TaxComponents  datatypes.JSONSlice[taxdomain.ComponentAmount] `gorm:"not null" json:"tax_components"`
	TaxTotal       int64                                          `gorm:"not null" json:"tax_total"`
	Total          int64                                          `gorm:"not null" json:"total"`
	Currency       string                                         `gorm:"type:text;not null" json:"currency"`
	Status         RecordStatus                                   `gorm:"type:text;not null" json:"status"`
	Jurisdiction   string                                         `gorm:"type:text;not null" json:"jurisdiction"`
	ExternalRef    *string                                        `gorm:"type:text;uniqueIndex:ux_billing_records_type_external_ref,priority:2" json:"external_ref,omitempty"`
	SourceEventID  *string                                        `gorm:"type:text" json:"source_event_id,omitempty"`
	CreatedAt      time.Time                                      `gorm:"not null" json:"created_at"`
}

func (BillingRecord) TableName() string { return "billing_records" }

// Balanced checks total == subtotal + sum(components) and tax_total == sum(components).
func (r BillingRecord) Balanced() bool {
	var sum int64
	for _, c := range r.TaxComponents {
		sum += c.Amount
	}
	return r.TaxTotal == sum && r.Total == r.Subtotal+sum
}

// InvoiceSequence is the per-month gapless counter.
type InvoiceSequence struct {
	YearMonth string    `gorm:"primaryKey;type:text"`
	LastValue int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

// NewRecord is the input for writing a billing record inside a unit of work.
type NewRecord struct {
	SubscriptionID snowflake.ID
	Type           RecordType
	Breakdown      taxdomain.Breakdown
	Currency       string
	ExternalRef    string
	SourceEventID  string
	At             time.Time
}
