package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem     ActorType = "system"
	ActorTypeCustomer   ActorType = "customer"
	ActorTypeProcessor  ActorType = "processor"
	ActorTypeOperator   ActorType = "operator"
	ActorTypeCompliance ActorType = "compliance"
)

const (
	ActionSubscriptionCreated    = "subscription.created"
	ActionSubscriptionTransition = "subscription.transition"
	ActionSubscriptionRenewed    = "subscription.renewed"
	ActionCancellationScheduled  = "subscription.cancellation_scheduled"
	ActionSubscriptionRefunded   = "subscription.refunded"
	ActionEventIgnored           = "subscription.event_ignored"
)

// AuditLog is an append-only record of a subscription change.
type AuditLog struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubscriptionID *snowflake.ID     `gorm:"index" json:"subscription_id,omitempty"`
	Action         string            `gorm:"type:text;not null;index" json:"action"`
	Before         datatypes.JSONMap `json:"before,omitempty"`
	After          datatypes.JSONMap `json:"after,omitempty"`
	Diff           datatypes.JSONMap `json:"diff,omitempty"`
	Note           *string           `gorm:"type:text" json:"note,omitempty"`
	ActorType      string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID        *string           `gorm:"type:text" json:"actor_id,omitempty"`
	IPAddress      *string           `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent      *string           `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID      *string           `gorm:"type:text" json:"request_id,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is the input to Record. Actor fields fall back to the audit context.
type Entry struct {
	SubscriptionID snowflake.ID
	Action         string
	Before         map[string]any
	After          map[string]any
	Note           string
	ActorType      ActorType
	ActorID        string
	At             time.Time
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	SubscriptionID *snowflake.ID
	Action         string
	StartAt        *time.Time
	EndAt          *time.Time
	Cursor         *AuditCursor
	Limit          int
}
