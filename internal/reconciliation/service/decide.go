package service

import (
	"context"
	"fmt"

	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"gorm.io/gorm"
)

// decision is what an event asks of the subscription. An empty trigger with
// renew unset is a no-op.
type decision struct {
	trigger subscriptiondomain.Trigger
	renew   bool
	record  bool
	note    string
}

func ignore(note string) decision {
	return decision{note: note}
}

func (e *Engine) decide(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, ev reconciliationdomain.Event) (decision, error) {
	switch ev := ev.(type) {
	case reconciliationdomain.PaymentSucceeded:
		return e.decidePayment(ctx, tx, sub, ev.Kind(), ev.Payment)
	case reconciliationdomain.InvoicePaid:
		return e.decidePayment(ctx, tx, sub, ev.Kind(), ev.Payment)
	case reconciliationdomain.PaymentFailed:
		if sub.Status == subscriptiondomain.StatusActive {
			return decision{trigger: subscriptiondomain.TriggerPaymentFailed, note: ev.FailureCode}, nil
		}
		return ignore(rejected(ev.Kind(), sub.Status)), nil
	case reconciliationdomain.SubscriptionCancelled:
		if sub.Status == subscriptiondomain.StatusTrialing {
			return decision{trigger: subscriptiondomain.TriggerTrialExpired, note: "trial_cancelled"}, nil
		}
		return decision{trigger: subscriptiondomain.TriggerCancel}, nil
	default:
		return decision{}, reconciliationdomain.ErrUnknownEventKind
	}
}

func (e *Engine) decidePayment(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, kind reconciliationdomain.Kind, p reconciliationdomain.Payment) (decision, error) {
	if p.PaymentRef != "" {
		existing, err := e.invoices.FindByExternalRef(ctx, tx, invoicedomain.RecordTypePayment, p.PaymentRef)
		if err != nil {
			return decision{}, err
		}
		if existing != nil {
			return ignore("payment_already_recorded " + existing.InvoiceNumber), nil
		}
	}

	switch sub.Status {
	case subscriptiondomain.StatusTrialing:
		return decision{trigger: subscriptiondomain.TriggerConversionPayment, record: true}, nil
	case subscriptiondomain.StatusPastDue:
		return decision{trigger: subscriptiondomain.TriggerPaymentRecovered, record: true}, nil
	case subscriptiondomain.StatusActive:
		return decision{renew: true, record: true}, nil
	default:
		return ignore(rejected(kind, sub.Status)), nil
	}
}

func rejected(kind reconciliationdomain.Kind, status subscriptiondomain.Status) string {
	return fmt.Sprintf("%s: %s on %s", subscriptiondomain.ErrInvalidTransition, kind, status)
}
