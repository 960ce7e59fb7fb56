package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the stored policy and adds any missing default rules.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role string, object string, action string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func roleSubject(role string) string {
	return "role:" + role
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	customer := roleSubject(RoleCustomer)
	compliance := roleSubject(RoleCompliance)
	admin := roleSubject(RoleAdmin)

	policies := [][]string{
		// Customer permissions, ownership is checked per request
		{customer, ObjectSubscription, ActionSubscriptionStartTrial},
		{customer, ObjectSubscription, ActionSubscriptionConvert},
		{customer, ObjectSubscription, ActionSubscriptionCancel},
		{customer, ObjectSubscription, ActionSubscriptionView},
		{customer, ObjectBillingRecord, ActionBillingRecordView},
		{customer, ObjectBillingRecord, ActionBillingRecordReceipt},
		{customer, ObjectPricing, ActionPricingQuote},

		// Compliance permissions (read-only)
		{compliance, ObjectSubscription, ActionSubscriptionView},
		{compliance, ObjectBillingRecord, ActionBillingRecordView},
		{compliance, ObjectBillingRecord, ActionBillingRecordReceipt},
		{compliance, ObjectAuditLog, ActionAuditLogView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	for _, parent := range []string{customer, compliance} {
		if _, err := enforcer.AddGroupingPolicy(admin, parent); err != nil {
			return err
		}
	}
	return nil
}
