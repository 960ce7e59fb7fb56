package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
)

type Outcome string

const (
	OutcomeApplied Outcome = "APPLIED"
	OutcomeNoop    Outcome = "NOOP"
)

// ProcessedEvent is the idempotency ledger row, written once per distinct
// processor event in the same transaction as its effects.
type ProcessedEvent struct {
	Provider        string        `gorm:"primaryKey;type:text"`
	EventID         string        `gorm:"primaryKey;type:text"`
	Kind            string        `gorm:"type:text;not null"`
	SubscriptionID  *snowflake.ID `gorm:"index"`
	Outcome         Outcome       `gorm:"type:text;not null"`
	FromStatus      *string       `gorm:"type:text"`
	ToStatus        *string       `gorm:"type:text"`
	BillingRecordID *snowflake.ID
	Note            *string   `gorm:"type:text"`
	OccurredAt      time.Time `gorm:"not null"`
	ProcessedAt     time.Time `gorm:"not null"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }

// Result is what the engine reports for an event.
type Result struct {
	EventID         string                    `json:"event_id"`
	Provider        string                    `json:"provider"`
	Kind            Kind                      `json:"kind"`
	Outcome         Outcome                   `json:"outcome"`
	Duplicate       bool                      `json:"duplicate"`
	SubscriptionID  snowflake.ID              `json:"subscription_id"`
	FromStatus      subscriptiondomain.Status `json:"from_status,omitempty"`
	ToStatus        subscriptiondomain.Status `json:"to_status,omitempty"`
	BillingRecordID *snowflake.ID             `json:"billing_record_id,omitempty"`
	Note            string                    `json:"note,omitempty"`
	Access          subscriptiondomain.Access `json:"access"`
}

// ResultFromRecord rebuilds the stored outcome of a processed event.
func ResultFromRecord(rec ProcessedEvent) Result {
	res := Result{
		EventID:         rec.EventID,
		Provider:        rec.Provider,
		Kind:            Kind(rec.Kind),
		Outcome:         rec.Outcome,
		BillingRecordID: rec.BillingRecordID,
	}
	if rec.SubscriptionID != nil {
		res.SubscriptionID = *rec.SubscriptionID
	}
	if rec.FromStatus != nil {
		res.FromStatus = subscriptiondomain.Status(*rec.FromStatus)
	}
	if rec.ToStatus != nil {
		res.ToStatus = subscriptiondomain.Status(*rec.ToStatus)
	}
	if rec.Note != nil {
		res.Note = *rec.Note
	}
	return res
}
