// Package stack wires the billing services over an in-memory database for
// tests that cross package boundaries.
package stack

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	auditrepository "github.com/smallbiznis/nestbill/internal/audit/repository"
	auditservice "github.com/smallbiznis/nestbill/internal/audit/service"
	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	catalogrepository "github.com/smallbiznis/nestbill/internal/catalog/repository"
	"github.com/smallbiznis/nestbill/internal/clock"
	"github.com/smallbiznis/nestbill/internal/config"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/nestbill/internal/invoice/repository"
	"github.com/smallbiznis/nestbill/internal/invoice/sequence"
	invoiceservice "github.com/smallbiznis/nestbill/internal/invoice/service"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	"github.com/smallbiznis/nestbill/internal/payment/gateway"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	reconciliationrepository "github.com/smallbiznis/nestbill/internal/reconciliation/repository"
	reconciliationservice "github.com/smallbiznis/nestbill/internal/reconciliation/service"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/nestbill/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/nestbill/internal/subscription/service"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	taxservice "github.com/smallbiznis/nestbill/internal/tax/service"
	"github.com/smallbiznis/nestbill/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type staticRates struct{}

func (staticRates) Table() *taxdomain.RateTable { return taxdomain.DefaultRateTable() }

type Stack struct {
	DB            *gorm.DB
	Log           *zap.Logger
	Clock         *clock.FakeClock
	Node          *snowflake.Node
	Config        config.Config
	Policy        *config.BillingPolicyHolder
	Tax           taxdomain.Calculator
	Audit         auditdomain.Service
	Plans         catalogdomain.Repository
	Invoices      invoicedomain.Service
	InvoiceRepo   invoicedomain.Repository
	Subs          subscriptiondomain.Repository
	Engine        reconciliationdomain.Engine
	Gateway       paymentdomain.Gateway
	Subscriptions *subscriptionservice.Service
}

type Option func(*Stack)

// WithGateway replaces the sandbox gateway.
func WithGateway(gw paymentdomain.Gateway) Option {
	return func(s *Stack) { s.Gateway = gw }
}

func New(t testing.TB, start time.Time, opts ...Option) *Stack {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(start)
	s := &Stack{
		DB:     testutil.OpenDB(t),
		Log:    zap.NewNop(),
		Clock:  fake,
		Node:   node,
		Policy: testutil.StaticPolicy(),
		Config: config.Config{
			Reconcile: config.ReconcileConfig{Timeout: 5 * time.Second, MaxAttempts: 3},
		},
		Plans:       catalogrepository.Provide(),
		InvoiceRepo: invoicerepository.Provide(),
		Subs:        subscriptionrepository.Provide(),
		Gateway:     gateway.NewSandbox(fake),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Tax = taxservice.New(staticRates{}, "CA", s.Log, nil)
	s.Audit = auditservice.NewService(auditservice.Params{
		DB:    s.DB,
		Log:   s.Log,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	s.Invoices = invoiceservice.NewService(invoiceservice.Params{
		DB:   s.DB,
		Log:  s.Log,
		Repo: s.InvoiceRepo,
	})
	s.Engine = reconciliationservice.NewService(reconciliationservice.Params{
		DB:       s.DB,
		Log:      s.Log,
		Config:   s.Config,
		Policy:   s.Policy,
		Clock:    fake,
		GenID:    node,
		Store:    reconciliationrepository.Provide(),
		Subs:     s.Subs,
		Plans:    s.Plans,
		Invoices: s.InvoiceRepo,
		Writer: invoiceservice.NewWriter(invoiceservice.WriterParams{
			Log:       s.Log,
			GenID:     node,
			Repo:      s.InvoiceRepo,
			Sequencer: sequence.New(s.Policy),
		}),
		Tax:   s.Tax,
		Audit: s.Audit,
	})
	s.Subscriptions = subscriptionservice.NewService(subscriptionservice.Params{
		DB:          s.DB,
		Log:         s.Log,
		Clock:       fake,
		Policy:      s.Policy,
		Engine:      s.Engine,
		Repo:        s.Subs,
		Plans:       s.Plans,
		Invoices:    s.Invoices,
		InvoiceRepo: s.InvoiceRepo,
		Tax:         s.Tax,
		Gateway:     s.Gateway,
	})
	return s
}
