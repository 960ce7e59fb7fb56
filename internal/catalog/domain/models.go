package domain

import (
	"time"

	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"gorm.io/datatypes"
)

// Plan is a read-only catalog entry.
type Plan struct {
	Code            string                      `gorm:"primaryKey;type:text" json:"code"`
	Tier            string                      `gorm:"type:text;not null" json:"tier"`
	DisplayName     string                      `gorm:"type:text;not null" json:"display_name"`
	Price           int64                       `gorm:"not null" json:"price"`
	Currency        string                      `gorm:"type:text;not null" json:"currency"`
	BillingInterval subscriptiondomain.Interval `gorm:"type:text;not null" json:"billing_interval"`
	Features        datatypes.JSONSlice[string] `gorm:"not null" json:"features"`
	Active          bool                        `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time                   `gorm:"not null" json:"created_at"`
}

func (Plan) TableName() string { return "subscription_plans" }
