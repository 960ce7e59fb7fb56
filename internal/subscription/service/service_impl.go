package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	"github.com/smallbiznis/nestbill/internal/clock"
	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/entitlement"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	"github.com/smallbiznis/nestbill/internal/refund"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Policy      *config.BillingPolicyHolder
	Engine      reconciliationdomain.Engine
	Repo        subscriptiondomain.Repository
	Plans       catalogdomain.Repository
	Invoices    invoicedomain.Service
	InvoiceRepo invoicedomain.Repository
	Tax         taxdomain.Calculator
	Gateway     paymentdomain.Gateway
}

// Service is the customer-facing subscription surface. Every state change is
// delegated to the reconciliation engine.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	machine     *subscriptiondomain.Machine
	engine      reconciliationdomain.Engine
	repo        subscriptiondomain.Repository
	plans       catalogdomain.Repository
	invoices    invoicedomain.Service
	invoiceRepo invoicedomain.Repository
	tax         taxdomain.Calculator
	gateway     paymentdomain.Gateway
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		clock:       p.Clock,
		machine:     subscriptiondomain.NewMachine(p.Policy, p.Tax),
		engine:      p.Engine,
		repo:        p.Repo,
		plans:       p.Plans,
		invoices:    p.Invoices,
		invoiceRepo: p.InvoiceRepo,
		tax:         p.Tax,
		gateway:     p.Gateway,
	}
}

func (s *Service) StartTrial(ctx context.Context, req subscriptiondomain.StartTrialRequest) (subscriptiondomain.View, error) {
	return s.engine.StartTrial(ctx, reconciliationdomain.StartTrialCommand{
		CustomerRef:  req.CustomerRef,
		PlanCode:     req.PlanCode,
		Jurisdiction: req.Jurisdiction,
	})
}

// ConvertToPaid charges the first period through the gateway and applies the
// charge as a conversion payment. A processor webhook for the same charge is
// later recognised by its payment reference.
func (s *Service) ConvertToPaid(ctx context.Context, req subscriptiondomain.ConvertRequest) (subscriptiondomain.View, error) {
	req.PaymentMethodRef = strings.TrimSpace(req.PaymentMethodRef)
	if req.PaymentMethodRef == "" {
		return subscriptiondomain.View{}, subscriptiondomain.ErrInvalidPaymentMethod
	}

	view, err := s.Get(ctx, req.SubscriptionID)
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	sub := view.Subscription
	if sub.Status != subscriptiondomain.StatusTrialing {
		return subscriptiondomain.View{}, fmt.Errorf("%w: convert on %s", subscriptiondomain.ErrInvalidTransition, sub.Status)
	}

	breakdown, err := s.tax.Compute(sub.Amount, sub.Jurisdiction)
	if err != nil {
		return subscriptiondomain.View{}, err
	}

	charge, err := s.gateway.Charge(ctx, paymentdomain.ChargeRequest{
		SubscriptionID:   sub.ID,
		CustomerRef:      sub.CustomerRef,
		PaymentMethodRef: req.PaymentMethodRef,
		Amount:           breakdown.Total,
		Currency:         sub.Currency,
		IdempotencyKey:   fmt.Sprintf("convert_%s_v%d", sub.ID, sub.Version),
	})
	if err != nil {
		s.log.Warn("conversion charge failed",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
		return subscriptiondomain.View{}, err
	}

	now := s.clock.Now()
	result, err := s.engine.Handle(ctx, reconciliationdomain.PaymentSucceeded{
		EventMeta: reconciliationdomain.EventMeta{
			EventID:         "conv_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
			Provider:        reconciliationdomain.ProviderInternal,
			SubscriptionRef: sub.ID.String(),
			OccurredAt:      now,
		},
		Payment: reconciliationdomain.Payment{
			Amount:     charge.Amount,
			Currency:   charge.Currency,
			PaymentRef: charge.ID,
		},
		PaymentMethodRef: req.PaymentMethodRef,
	})
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	if result.Outcome != reconciliationdomain.OutcomeApplied {
		s.log.Error("charge captured but conversion not applied",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("charge_id", charge.ID),
			zap.String("note", result.Note),
		)
		return subscriptiondomain.View{}, fmt.Errorf("%w: %s", subscriptiondomain.ErrInvalidTransition, result.Note)
	}

	return s.Get(ctx, sub.ID)
}

// Cancel issues the cooling-off refund at the gateway when an immediate
// cancel qualifies, then records the cancellation.
func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (subscriptiondomain.CancelResponse, error) {
	sub, err := s.find(ctx, req.SubscriptionID)
	if err != nil {
		return subscriptiondomain.CancelResponse{}, err
	}

	var refundRef string
	if req.Immediate {
		refundRef, err = s.refund(ctx, sub)
		if err != nil {
			return subscriptiondomain.CancelResponse{}, err
		}
	}

	res, err := s.engine.Cancel(ctx, reconciliationdomain.CancelCommand{
		SubscriptionID: req.SubscriptionID,
		Immediate:      req.Immediate,
		RefundRef:      refundRef,
	})
	if err != nil {
		return subscriptiondomain.CancelResponse{}, err
	}
	if refundRef != "" && !res.Eligible {
		s.log.Error("refund issued but cancellation no longer eligible",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("refund_ref", refundRef),
			zap.String("reason", string(res.Reason)),
		)
	}

	resp := subscriptiondomain.CancelResponse{
		RefundEligible: res.Eligible,
		RefundAmount:   res.RefundAmount,
		Currency:       res.Currency,
		AccessUntil:    res.AccessUntil,
		Reason:         string(res.Reason),
		WindowEndsAt:   res.WindowEndsAt,
		Subscription:   res.Subscription,
	}
	if res.Eligible {
		resp.RefundRef = refundRef
	}
	return resp, nil
}

func (s *Service) refund(ctx context.Context, sub *subscriptiondomain.Subscription) (string, error) {
	last, err := s.invoiceRepo.LatestPayment(ctx, s.db, sub.ID)
	if err != nil {
		return "", err
	}
	eval := refund.Evaluate(*sub, last, s.clock.Now(), s.tax.Location(sub.Jurisdiction))
	if !eval.Eligible || eval.Payment == nil {
		return "", nil
	}
	if eval.Payment.ExternalRef == nil || *eval.Payment.ExternalRef == "" {
		s.log.Warn("refund skipped, payment has no processor reference",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("billing_record_id", eval.Payment.ID.String()),
		)
		return "", subscriptiondomain.ErrRefundNotIssued
	}

	r, err := s.gateway.Refund(ctx, paymentdomain.RefundRequest{
		SubscriptionID: sub.ID,
		PaymentRef:     *eval.Payment.ExternalRef,
		Amount:         eval.RefundAmount,
		Currency:       eval.Currency,
		IdempotencyKey: "refund_" + eval.Payment.ID.String(),
	})
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// Get returns the subscription and its access. Due time-driven transitions
// are applied first so reads never show an expired state.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (subscriptiondomain.View, error) {
	sub, err := s.find(ctx, id)
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	if _, _, due := s.machine.Due(*sub, s.clock.Now()); due {
		return s.engine.Advance(ctx, id)
	}

	var features []string
	plan, err := s.plans.FindByCode(ctx, s.db, sub.PlanCode)
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	if plan != nil {
		features = plan.Features
	}
	return subscriptiondomain.View{
		Subscription: *sub,
		Access:       entitlement.Project(sub.Status, features),
	}, nil
}

// BillingHistory lists the subscription's billing records newest first.
func (s *Service) BillingHistory(ctx context.Context, req invoicedomain.HistoryRequest) (invoicedomain.HistoryResponse, error) {
	if _, err := s.find(ctx, req.SubscriptionID); err != nil {
		return invoicedomain.HistoryResponse{}, err
	}
	return s.invoices.History(ctx, req)
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if id == 0 {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

