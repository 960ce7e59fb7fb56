package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/nestbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(testutil.OpenDB(t))
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorize(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		role   string
		object string
		action string
		want   error
	}{
		{"customer converts", RoleCustomer, ObjectSubscription, ActionSubscriptionConvert, nil},
		{"customer quotes", RoleCustomer, ObjectPricing, ActionPricingQuote, nil},
		{"customer reads audit log", RoleCustomer, ObjectAuditLog, ActionAuditLogView, ErrForbidden},
		{"compliance reads audit log", RoleCompliance, ObjectAuditLog, ActionAuditLogView, nil},
		{"compliance views subscription", RoleCompliance, ObjectSubscription, ActionSubscriptionView, nil},
		{"compliance cannot cancel", RoleCompliance, ObjectSubscription, ActionSubscriptionCancel, ErrForbidden},
		{"admin inherits customer", RoleAdmin, ObjectSubscription, ActionSubscriptionCancel, nil},
		{"admin inherits compliance", RoleAdmin, ObjectAuditLog, ActionAuditLogView, nil},
		{"role is case insensitive", "Compliance", ObjectAuditLog, ActionAuditLogView, nil},
		{"unknown role", "guest", ObjectSubscription, ActionSubscriptionView, ErrForbidden},
		{"action on wrong object", RoleCustomer, ObjectBillingRecord, ActionSubscriptionView, ErrForbidden},
		{"missing role", " ", ObjectSubscription, ActionSubscriptionView, ErrInvalidActor},
		{"missing object", RoleCustomer, "", ActionSubscriptionView, ErrInvalidObject},
		{"missing action", RoleCustomer, ObjectSubscription, "", ErrInvalidAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.role, tc.object, tc.action)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNewEnforcerDoesNotDuplicatePolicies(t *testing.T) {
	db := testutil.OpenDB(t)

	_, err := NewEnforcer(db)
	require.NoError(t, err)
	var first int64
	require.NoError(t, db.Table("casbin_rule").Count(&first).Error)
	require.NotZero(t, first)

	_, err = NewEnforcer(db)
	require.NoError(t, err)
	var second int64
	require.NoError(t, db.Table("casbin_rule").Count(&second).Error)
	assert.Equal(t, first, second)
}
