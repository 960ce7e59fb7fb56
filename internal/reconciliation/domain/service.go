package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nestbill/internal/refund"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
)

type StartTrialCommand struct {
	CustomerRef  string `validate:"required,max=255"`
	PlanCode     string `validate:"required,max=64"`
	Jurisdiction string `validate:"required,max=16"`
}

type CancelCommand struct {
	SubscriptionID snowflake.ID `validate:"required"`
	Immediate      bool
	// RefundRef is the processor refund id when the caller already issued
	// the cooling-off refund.
	RefundRef string `validate:"max=255"`
}

// CancelResult carries the refund decision and the resulting subscription.
type CancelResult struct {
	refund.Evaluation
	Subscription subscriptiondomain.View `json:"subscription"`
}

// Engine is the single unit of work for subscription state. Every write to a
// subscription goes through it.
type Engine interface {
	Handle(ctx context.Context, ev Event) (Result, error)
	StartTrial(ctx context.Context, cmd StartTrialCommand) (subscriptiondomain.View, error)
	Cancel(ctx context.Context, cmd CancelCommand) (CancelResult, error)
	// Advance applies time-driven transitions that are due now.
	Advance(ctx context.Context, id snowflake.ID) (subscriptiondomain.View, error)
}
