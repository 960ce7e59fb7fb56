package service

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	"github.com/smallbiznis/nestbill/internal/audit/masking"
	"github.com/smallbiznis/nestbill/internal/auditcontext"
	"github.com/smallbiznis/nestbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultPageSize = 50

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) (*auditdomain.AuditLog, error) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}

	before := masking.Snapshot(entry.Before)
	after := masking.Snapshot(entry.After)
	actorType, actorID := resolveActor(ctx, entry.ActorType, entry.ActorID)

	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}

	record := auditdomain.AuditLog{
		ID:        s.genID.Generate(),
		Action:    action,
		Before:    toJSONMap(before),
		After:     toJSONMap(after),
		Diff:      toJSONMap(Diff(before, after)),
		Note:      optional(entry.Note),
		ActorType: actorType,
		ActorID:   optional(actorID),
		IPAddress: optional(auditcontext.IPAddressFromContext(ctx)),
		UserAgent: optional(auditcontext.UserAgentFromContext(ctx)),
		RequestID: optional(auditcontext.RequestIDFromContext(ctx)),
		CreatedAt: at.UTC(),
	}
	if entry.SubscriptionID != 0 {
		id := entry.SubscriptionID
		record.SubscriptionID = &id
	}

	if err := s.repo.Insert(ctx, tx, &record); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return nil, err
	}
	return &record, nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	subscriptionID, err := auditdomain.ParseSubscriptionID(strings.TrimSpace(req.SubscriptionID))
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	var cursor *auditdomain.AuditCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err = decodeCursor(token)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = pagination.ClampPageSize(pageSize)

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		SubscriptionID: subscriptionID,
		Action:         req.Action,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		Cursor:         cursor,
		Limit:          pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: logs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Diff lists the keys whose values changed as {key: {from, to}}.
func Diff(before, after map[string]any) map[string]any {
	out := map[string]any{}
	for key, next := range after {
		prev, ok := before[key]
		if ok && reflect.DeepEqual(prev, next) {
			continue
		}
		out[key] = map[string]any{"from": prev, "to": next}
	}
	for key, prev := range before {
		if _, ok := after[key]; !ok {
			out[key] = map[string]any{"from": prev, "to": nil}
		}
	}
	return out
}

func decodeCursor(token string) (*auditdomain.AuditCursor, error) {
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}, nil
}

func resolveActor(ctx context.Context, actorType auditdomain.ActorType, actorID string) (string, string) {
	resolvedType := strings.TrimSpace(string(actorType))
	resolvedID := strings.TrimSpace(actorID)
	if resolvedType == "" {
		ctxType, ctxID := auditcontext.ActorFromContext(ctx)
		resolvedType = ctxType
		if resolvedID == "" {
			resolvedID = ctxID
		}
	}
	if resolvedType == "" {
		resolvedType = string(auditdomain.ActorTypeSystem)
	}
	return resolvedType, resolvedID
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	if len(m) == 0 {
		return nil
	}
	return datatypes.JSONMap(m)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
