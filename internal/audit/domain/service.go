package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nestbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	SubscriptionID string
	Action         string
	StartAt        *time.Time
	EndAt          *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Repository exposes insert and range reads only.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type Service interface {
	// Record writes entry with tx so it commits or rolls back together with
	// the change it describes.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) (*AuditLog, error)
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidSubscription = errors.New("invalid_subscription")
)

// ParseSubscriptionID parses an optional filter value.
func ParseSubscriptionID(value string) (*snowflake.ID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id == 0 {
		return nil, ErrInvalidSubscription
	}
	return &id, nil
}
