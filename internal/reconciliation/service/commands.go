package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	"github.com/smallbiznis/nestbill/internal/refund"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StartTrial creates the customer's subscription on first use and moves it
// from FREE to TRIALING. A customer gets one trial.
func (e *Engine) StartTrial(ctx context.Context, cmd reconciliationdomain.StartTrialCommand) (subscriptiondomain.View, error) {
	cmd.CustomerRef = strings.TrimSpace(cmd.CustomerRef)
	cmd.PlanCode = strings.ToLower(strings.TrimSpace(cmd.PlanCode))
	cmd.Jurisdiction = taxdomain.NormalizeJurisdiction(cmd.Jurisdiction)
	if err := e.validate.Struct(cmd); err != nil {
		if cmd.CustomerRef == "" {
			return subscriptiondomain.View{}, subscriptiondomain.ErrInvalidCustomer
		}
		return subscriptiondomain.View{}, fmt.Errorf("%w: %v", subscriptiondomain.ErrInvalidSubscription, err)
	}
	if !taxdomain.ValidJurisdiction(cmd.Jurisdiction) {
		return subscriptiondomain.View{}, taxdomain.ErrInvalidJurisdiction
	}

	var view subscriptiondomain.View
	err := e.run(ctx, func(tx *gorm.DB) error {
		plan, err := e.plans.FindByCode(ctx, tx, cmd.PlanCode)
		if err != nil {
			return err
		}
		if plan == nil || !plan.Active {
			return catalogdomain.ErrPlanNotFound
		}

		now := e.clock.Now()
		sub, err := e.store.LockByCustomerRef(ctx, tx, cmd.CustomerRef)
		if err != nil {
			return err
		}
		if sub == nil {
			sub = &subscriptiondomain.Subscription{
				ID:               e.genID.Generate(),
				CustomerRef:      cmd.CustomerRef,
				Status:           subscriptiondomain.StatusFree,
				LastTransitionAt: now,
				Version:          1,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			applyPlan(sub, plan, cmd.Jurisdiction)
			if err := e.store.Insert(ctx, tx, sub); err != nil {
				return err
			}
			if _, err := e.audit.Record(ctx, tx, auditdomain.Entry{
				SubscriptionID: sub.ID,
				Action:         auditdomain.ActionSubscriptionCreated,
				After:          sub.Snapshot(),
				ActorType:      auditdomain.ActorTypeCustomer,
				ActorID:        cmd.CustomerRef,
				At:             now,
			}); err != nil {
				return err
			}
		} else {
			if sub.Status != subscriptiondomain.StatusFree {
				return subscriptiondomain.ErrSubscriptionExists
			}
			if sub.TrialConsumed {
				return subscriptiondomain.ErrTrialAlreadyUsed
			}
		}

		expected := sub.Version
		before := sub.Snapshot()
		applyPlan(sub, plan, cmd.Jurisdiction)
		t, err := e.machine.Fire(sub, subscriptiondomain.TriggerTrialStart, now)
		if err != nil {
			return err
		}
		sub.UpdatedAt = now
		if err := e.store.Update(ctx, tx, sub, expected); err != nil {
			return err
		}
		if _, err := e.audit.Record(ctx, tx, auditdomain.Entry{
			SubscriptionID: sub.ID,
			Action:         auditdomain.ActionSubscriptionTransition,
			Before:         before,
			After:          sub.Snapshot(),
			Note:           string(subscriptiondomain.TriggerTrialStart),
			ActorType:      auditdomain.ActorTypeCustomer,
			ActorID:        cmd.CustomerRef,
			At:             now,
		}); err != nil {
			return err
		}
		e.metrics.RecordTransition(ctx, string(t.From), string(t.To))

		view, err = e.view(ctx, tx, sub)
		return err
	})
	if err != nil {
		return subscriptiondomain.View{}, err
	}

	e.log.Info("trial started",
		zap.String("subscription_id", view.ID.String()),
		zap.String("plan_code", view.PlanCode),
		zap.Timep("trial_ends_at", view.TrialEndsAt),
	)
	return view, nil
}

// Cancel ends a subscription. Inside the cooling-off window an immediate
// cancel refunds the last payment and ends access now; otherwise the
// subscription stays usable until the current period ends.
func (e *Engine) Cancel(ctx context.Context, cmd reconciliationdomain.CancelCommand) (reconciliationdomain.CancelResult, error) {
	if err := e.validate.Struct(cmd); err != nil {
		return reconciliationdomain.CancelResult{}, fmt.Errorf("%w: %v", subscriptiondomain.ErrInvalidSubscription, err)
	}
	cmd.RefundRef = strings.TrimSpace(cmd.RefundRef)

	var result reconciliationdomain.CancelResult
	err := e.run(ctx, func(tx *gorm.DB) error {
		sub, err := e.store.LockByID(ctx, tx, cmd.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		now := e.clock.Now()
		expected := sub.Version
		lazy, err := e.applyDue(ctx, tx, sub, now)
		if err != nil {
			return err
		}

		before := sub.Snapshot()
		eval, action, note, err := e.cancel(ctx, tx, sub, cmd, now)
		if err != nil {
			return err
		}

		if action != "" || lazy > 0 {
			sub.UpdatedAt = now
			if err := e.store.Update(ctx, tx, sub, expected); err != nil {
				return err
			}
		}
		if action != "" {
			if _, err := e.audit.Record(ctx, tx, auditdomain.Entry{
				SubscriptionID: sub.ID,
				Action:         action,
				Before:         before,
				After:          sub.Snapshot(),
				Note:           note,
				ActorType:      auditdomain.ActorTypeCustomer,
				ActorID:        sub.CustomerRef,
				At:             now,
			}); err != nil {
				return err
			}
		}

		view, err := e.view(ctx, tx, sub)
		if err != nil {
			return err
		}
		result = reconciliationdomain.CancelResult{Evaluation: eval, Subscription: view}
		return nil
	})
	if err != nil {
		return reconciliationdomain.CancelResult{}, err
	}

	e.log.Info("subscription cancel requested",
		zap.String("subscription_id", cmd.SubscriptionID.String()),
		zap.Bool("immediate", cmd.Immediate),
		zap.Bool("refund_eligible", result.Eligible),
		zap.String("reason", string(result.Reason)),
		zap.String("status", string(result.Subscription.Status)),
	)
	return result, nil
}

// cancel mutates sub in memory and returns the audit action, empty when
// nothing changed.
func (e *Engine) cancel(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, cmd reconciliationdomain.CancelCommand, now time.Time) (refund.Evaluation, string, string, error) {
	switch sub.Status {
	case subscriptiondomain.StatusFree, subscriptiondomain.StatusCancelled:
		return refund.Evaluation{}, "", "", fmt.Errorf("%w: cancel on %s", subscriptiondomain.ErrInvalidTransition, sub.Status)

	case subscriptiondomain.StatusTrialing:
		if err := e.fire(ctx, sub, subscriptiondomain.TriggerTrialExpired, now); err != nil {
			return refund.Evaluation{}, "", "", err
		}
		eval := refund.Evaluation{Reason: refund.ReasonNotActivated, AccessUntil: now}
		return eval, auditdomain.ActionSubscriptionTransition, "trial_cancelled", nil
	}

	last, err := e.invoices.LatestPayment(ctx, tx, sub.ID)
	if err != nil {
		return refund.Evaluation{}, "", "", err
	}
	eval := refund.Evaluate(*sub, last, now, e.tax.Location(sub.Jurisdiction))

	if cmd.Immediate && eval.Eligible {
		// The gateway refund must exist before the books show one.
		if cmd.RefundRef == "" {
			return refund.Evaluation{}, "", "", subscriptiondomain.ErrRefundNotIssued
		}
		if err := e.fire(ctx, sub, subscriptiondomain.TriggerCancel, now); err != nil {
			return refund.Evaluation{}, "", "", err
		}
		rec, err := e.writer.Write(ctx, tx, invoicedomain.NewRecord{
			SubscriptionID: sub.ID,
			Type:           invoicedomain.RecordTypeRefund,
			Breakdown:      breakdownOf(*eval.Payment).Negate(),
			Currency:       eval.Payment.Currency,
			ExternalRef:    cmd.RefundRef,
			At:             now,
		})
		if err != nil {
			return refund.Evaluation{}, "", "", err
		}
		eval.AccessUntil = now
		return eval, auditdomain.ActionSubscriptionRefunded, "cooling_off_refund " + rec.InvoiceNumber, nil
	}

	if eval.Eligible {
		eval = refund.Evaluation{
			Reason:       refund.ReasonDeferredCancel,
			WindowEndsAt: eval.WindowEndsAt,
			AccessUntil:  eval.AccessUntil,
		}
	}

	if sub.CancelAt != nil {
		eval.AccessUntil = *sub.CancelAt
		return eval, "", "", nil
	}

	end := now
	if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now) {
		end = *sub.CurrentPeriodEnd
	}
	if sub.Status == subscriptiondomain.StatusUnpaid || !end.After(now) {
		if err := e.fire(ctx, sub, subscriptiondomain.TriggerCancel, now); err != nil {
			return refund.Evaluation{}, "", "", err
		}
		eval.AccessUntil = now
		return eval, auditdomain.ActionSubscriptionTransition, "cancelled", nil
	}

	sub.CancelAt = &end
	eval.AccessUntil = end
	return eval, auditdomain.ActionCancellationScheduled, "cancel_at_period_end", nil
}

// Advance applies due time-driven transitions to one subscription. It is the
// lazy path for reads and the sweeper's unit of work.
func (e *Engine) Advance(ctx context.Context, id snowflake.ID) (subscriptiondomain.View, error) {
	var (
		view    subscriptiondomain.View
		applied int
	)
	err := e.run(ctx, func(tx *gorm.DB) error {
		sub, err := e.store.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		now := e.clock.Now()
		expected := sub.Version
		applied, err = e.applyDue(ctx, tx, sub, now)
		if err != nil {
			return err
		}
		if applied > 0 {
			sub.UpdatedAt = now
			if err := e.store.Update(ctx, tx, sub, expected); err != nil {
				return err
			}
		}

		view, err = e.view(ctx, tx, sub)
		return err
	})
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	if applied > 0 {
		e.log.Info("time-driven transitions applied",
			zap.String("subscription_id", id.String()),
			zap.Int("count", applied),
			zap.String("status", string(view.Status)),
		)
	}
	return view, nil
}

func (e *Engine) fire(ctx context.Context, sub *subscriptiondomain.Subscription, trigger subscriptiondomain.Trigger, at time.Time) error {
	t, err := e.machine.Fire(sub, trigger, at)
	if err != nil {
		return err
	}
	e.metrics.RecordTransition(ctx, string(t.From), string(t.To))
	return nil
}

func applyPlan(sub *subscriptiondomain.Subscription, plan *catalogdomain.Plan, jurisdiction string) {
	sub.PlanCode = plan.Code
	sub.BillingInterval = plan.BillingInterval
	sub.Currency = plan.Currency
	sub.Amount = plan.Price
	sub.Jurisdiction = jurisdiction
}

func breakdownOf(rec invoicedomain.BillingRecord) taxdomain.Breakdown {
	return taxdomain.Breakdown{
		Jurisdiction: rec.Jurisdiction,
		Subtotal:     rec.Subtotal,
		Components:   []taxdomain.ComponentAmount(rec.TaxComponents),
		TaxTotal:     rec.TaxTotal,
		Total:        rec.Total,
	}
}
