package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	"github.com/smallbiznis/nestbill/internal/clock"
	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/entitlement"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/nestbill/internal/observability/metrics"
	"github.com/smallbiznis/nestbill/internal/observability/tracing"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	// maxDueSteps bounds lazy catch-up; the longest chain is
	// PAST_DUE -> UNPAID -> CANCELLED.
	maxDueSteps = 4
)

var tracer = otel.Tracer("nestbill/reconciliation")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Policy   *config.BillingPolicyHolder
	Clock    clock.Clock
	GenID    *snowflake.Node
	Store    reconciliationdomain.Store
	Subs     subscriptiondomain.Repository
	Plans    catalogdomain.Repository
	Invoices invoicedomain.Repository
	Writer   invoicedomain.Writer
	Tax      taxdomain.Calculator
	Audit    auditdomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Engine struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	genID    *snowflake.Node
	store    reconciliationdomain.Store
	subs     subscriptiondomain.Repository
	plans    catalogdomain.Repository
	invoices invoicedomain.Repository
	writer   invoicedomain.Writer
	tax      taxdomain.Calculator
	audit    auditdomain.Service
	metrics  *obsmetrics.Metrics
	machine  *subscriptiondomain.Machine
	validate *validator.Validate

	timeout     time.Duration
	maxAttempts int
}

func NewService(p Params) reconciliationdomain.Engine {
	return NewEngine(p)
}

func NewEngine(p Params) *Engine {
	timeout := p.Config.Reconcile.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := p.Config.Reconcile.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}

	return &Engine{
		db:          p.DB,
		log:         p.Log.Named("reconciliation.engine"),
		clock:       clk,
		genID:       p.GenID,
		store:       p.Store,
		subs:        p.Subs,
		plans:       p.Plans,
		invoices:    p.Invoices,
		writer:      p.Writer,
		tax:         p.Tax,
		audit:       p.Audit,
		metrics:     p.Metrics,
		machine:     subscriptiondomain.NewMachine(p.Policy, p.Tax),
		validate:    validator.New(),
		timeout:     timeout,
		maxAttempts: attempts,
	}
}

// Handle reconciles one processor event. A redelivered event returns the
// outcome stored for its first delivery with Duplicate set.
func (e *Engine) Handle(ctx context.Context, ev reconciliationdomain.Event) (reconciliationdomain.Result, error) {
	if ev == nil {
		return reconciliationdomain.Result{}, reconciliationdomain.ErrInvalidEvent
	}
	switch ev.(type) {
	case reconciliationdomain.PaymentSucceeded,
		reconciliationdomain.PaymentFailed,
		reconciliationdomain.SubscriptionCancelled,
		reconciliationdomain.InvoicePaid:
	default:
		return reconciliationdomain.Result{}, reconciliationdomain.ErrUnknownEventKind
	}
	if err := e.validate.Struct(ev); err != nil {
		return reconciliationdomain.Result{}, fmt.Errorf("%w: %v", reconciliationdomain.ErrInvalidEvent, err)
	}

	meta := ev.Meta()
	meta.Provider = reconciliationdomain.NormalizeProvider(meta.Provider)
	meta.EventID = strings.TrimSpace(meta.EventID)
	meta.SubscriptionRef = strings.TrimSpace(meta.SubscriptionRef)
	meta.OccurredAt = meta.OccurredAt.UTC()

	started := time.Now()
	ctx, span := tracer.Start(ctx, "reconcile."+string(ev.Kind()))
	defer span.End()

	var res reconciliationdomain.Result
	err := e.run(ctx, func(tx *gorm.DB) error {
		out, err := e.handleTx(ctx, tx, ev, meta)
		res = out
		return err
	})
	if errors.Is(err, errLostRace) {
		res, err = e.stored(ctx, meta)
	}

	result := resultLabel(res, err)
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("event.provider", meta.Provider),
		attribute.String("event.type", string(ev.Kind())),
		attribute.String("reconcile.result", result),
	)...)
	e.metrics.RecordReconcileEvent(ctx, meta.Provider, string(ev.Kind()), result, time.Since(started))

	fields := []zap.Field{
		zap.String("event_id", meta.EventID),
		zap.String("provider", meta.Provider),
		zap.String("kind", string(ev.Kind())),
		zap.String("result", result),
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "reconcile failed")
		e.log.Warn("event reconcile failed", append(fields, zap.Error(err))...)
		return reconciliationdomain.Result{}, err
	}
	e.log.Info("event reconciled", append(fields,
		zap.String("subscription_id", res.SubscriptionID.String()),
		zap.String("from_status", string(res.FromStatus)),
		zap.String("to_status", string(res.ToStatus)),
	)...)
	return res, nil
}

func (e *Engine) handleTx(ctx context.Context, tx *gorm.DB, ev reconciliationdomain.Event, meta reconciliationdomain.EventMeta) (reconciliationdomain.Result, error) {
	if rec, err := e.store.FindEvent(ctx, tx, meta.Provider, meta.EventID); err != nil {
		return reconciliationdomain.Result{}, err
	} else if rec != nil {
		return e.duplicate(ctx, tx, *rec)
	}

	sub, err := e.lockRef(ctx, tx, meta.SubscriptionRef)
	if err != nil {
		return reconciliationdomain.Result{}, err
	}
	if sub == nil {
		return reconciliationdomain.Result{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	// A concurrent delivery may have committed while this one waited on the lock.
	if rec, err := e.store.FindEvent(ctx, tx, meta.Provider, meta.EventID); err != nil {
		return reconciliationdomain.Result{}, err
	} else if rec != nil {
		return e.duplicate(ctx, tx, *rec)
	}

	now := e.clock.Now()
	effective := now
	if !meta.OccurredAt.IsZero() && meta.OccurredAt.Before(now) {
		effective = meta.OccurredAt
	}

	expected := sub.Version
	lazy, err := e.applyDue(ctx, tx, sub, effective)
	if err != nil {
		return reconciliationdomain.Result{}, err
	}

	from := sub.Status
	before := sub.Snapshot()

	d, err := e.decide(ctx, tx, sub, ev)
	if err != nil {
		return reconciliationdomain.Result{}, err
	}

	changed := false
	if d.trigger != "" {
		t, err := e.machine.Fire(sub, d.trigger, effective)
		switch {
		case errors.Is(err, subscriptiondomain.ErrInvalidTransition):
			d = ignore(err.Error())
		case err != nil:
			return reconciliationdomain.Result{}, err
		default:
			changed = true
			e.metrics.RecordTransition(ctx, string(t.From), string(t.To))
		}
	}
	if d.renew {
		e.machine.AdvancePeriod(sub, effective)
		changed = true
	}
	if changed {
		if ps, ok := ev.(reconciliationdomain.PaymentSucceeded); ok && ps.PaymentMethodRef != "" {
			ref := ps.PaymentMethodRef
			sub.PaymentMethodRef = &ref
		}
	}

	var record *invoicedomain.BillingRecord
	if changed && d.record {
		payment, _ := reconciliationdomain.PaymentOf(ev)
		breakdown, err := e.tax.Compute(sub.Amount, sub.Jurisdiction)
		if err != nil {
			return reconciliationdomain.Result{}, err
		}
		if mismatch := amountMismatch(payment, breakdown, sub.Currency); mismatch != "" {
			d.note = joinNote(d.note, mismatch)
			e.log.Warn("payment amount differs from expected charge",
				zap.String("event_id", meta.EventID),
				zap.String("subscription_id", sub.ID.String()),
				zap.String("detail", mismatch),
			)
		}
		record, err = e.writer.Write(ctx, tx, invoicedomain.NewRecord{
			SubscriptionID: sub.ID,
			Type:           invoicedomain.RecordTypePayment,
			Breakdown:      breakdown,
			Currency:       sub.Currency,
			ExternalRef:    payment.PaymentRef,
			SourceEventID:  meta.EventID,
			At:             effective,
		})
		if err != nil {
			return reconciliationdomain.Result{}, err
		}
	}

	if changed || lazy > 0 {
		sub.UpdatedAt = now
		if err := e.store.Update(ctx, tx, sub, expected); err != nil {
			return reconciliationdomain.Result{}, err
		}
	}

	action := auditdomain.ActionEventIgnored
	switch {
	case changed && sub.Status != from:
		action = auditdomain.ActionSubscriptionTransition
	case changed:
		action = auditdomain.ActionSubscriptionRenewed
	}
	if _, err := e.audit.Record(ctx, tx, auditdomain.Entry{
		SubscriptionID: sub.ID,
		Action:         action,
		Before:         before,
		After:          sub.Snapshot(),
		Note:           joinNote(string(ev.Kind())+" "+meta.EventID, d.note),
		ActorType:      auditdomain.ActorTypeProcessor,
		ActorID:        meta.Provider,
		At:             now,
	}); err != nil {
		return reconciliationdomain.Result{}, err
	}

	outcome := reconciliationdomain.OutcomeNoop
	if changed {
		outcome = reconciliationdomain.OutcomeApplied
	}
	ledger := &reconciliationdomain.ProcessedEvent{
		Provider:       meta.Provider,
		EventID:        meta.EventID,
		Kind:           string(ev.Kind()),
		SubscriptionID: &sub.ID,
		Outcome:        outcome,
		FromStatus:     optional(string(from)),
		ToStatus:       optional(string(sub.Status)),
		Note:           optional(d.note),
		OccurredAt:     meta.OccurredAt,
		ProcessedAt:    now,
	}
	if meta.OccurredAt.IsZero() {
		ledger.OccurredAt = now
	}
	if record != nil {
		ledger.BillingRecordID = &record.ID
	}
	if err := e.store.InsertEvent(ctx, tx, ledger); err != nil {
		if isDuplicateKey(err) {
			return reconciliationdomain.Result{}, errLostRace
		}
		return reconciliationdomain.Result{}, err
	}

	res := reconciliationdomain.ResultFromRecord(*ledger)
	access, err := e.access(ctx, tx, sub)
	if err != nil {
		return reconciliationdomain.Result{}, err
	}
	res.Access = access
	return res, nil
}

// duplicate rebuilds the first delivery's outcome with the current access.
func (e *Engine) duplicate(ctx context.Context, tx *gorm.DB, rec reconciliationdomain.ProcessedEvent) (reconciliationdomain.Result, error) {
	res := reconciliationdomain.ResultFromRecord(rec)
	res.Duplicate = true
	if rec.SubscriptionID == nil {
		return res, nil
	}
	sub, err := e.subs.FindByID(ctx, tx, *rec.SubscriptionID)
	if err != nil {
		return reconciliationdomain.Result{}, err
	}
	if sub != nil {
		access, err := e.access(ctx, tx, sub)
		if err != nil {
			return reconciliationdomain.Result{}, err
		}
		res.Access = access
	}
	return res, nil
}

// stored reads the winner's outcome after a lost ledger race.
func (e *Engine) stored(ctx context.Context, meta reconciliationdomain.EventMeta) (reconciliationdomain.Result, error) {
	var res reconciliationdomain.Result
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := e.store.FindEvent(ctx, tx, meta.Provider, meta.EventID)
		if err != nil {
			return err
		}
		if rec == nil {
			return reconciliationdomain.ErrPersistenceConflict
		}
		res, err = e.duplicate(ctx, tx, *rec)
		return err
	})
	return res, err
}

func (e *Engine) lockRef(ctx context.Context, tx *gorm.DB, ref string) (*subscriptiondomain.Subscription, error) {
	if id, err := snowflake.ParseString(ref); err == nil && id > 0 {
		sub, err := e.store.LockByID(ctx, tx, id)
		if err != nil || sub != nil {
			return sub, err
		}
	}
	return e.store.LockByExternalRef(ctx, tx, ref)
}

// applyDue fires every time-driven transition that has come due by at, each
// at its own deadline, and audits them individually.
func (e *Engine) applyDue(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, at time.Time) (int, error) {
	applied := 0
	for i := 0; i < maxDueSteps; i++ {
		trigger, dueAt, ok := e.machine.Due(*sub, at)
		if !ok {
			break
		}
		before := sub.Snapshot()
		t, err := e.machine.Fire(sub, trigger, dueAt)
		if err != nil {
			return applied, err
		}
		if _, err := e.audit.Record(ctx, tx, auditdomain.Entry{
			SubscriptionID: sub.ID,
			Action:         auditdomain.ActionSubscriptionTransition,
			Before:         before,
			After:          sub.Snapshot(),
			Note:           "time_elapsed " + string(trigger),
			ActorType:      auditdomain.ActorTypeSystem,
			At:             e.clock.Now(),
		}); err != nil {
			return applied, err
		}
		e.metrics.RecordTransition(ctx, string(t.From), string(t.To))
		applied++
	}
	return applied, nil
}

func (e *Engine) access(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (subscriptiondomain.Access, error) {
	var features []string
	plan, err := e.plans.FindByCode(ctx, tx, sub.PlanCode)
	if err != nil {
		return subscriptiondomain.Access{}, err
	}
	if plan != nil {
		features = plan.Features
	}
	return entitlement.Project(sub.Status, features), nil
}

func (e *Engine) view(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (subscriptiondomain.View, error) {
	access, err := e.access(ctx, tx, sub)
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	return subscriptiondomain.View{Subscription: *sub, Access: access}, nil
}

func amountMismatch(p reconciliationdomain.Payment, expected taxdomain.Breakdown, currency string) string {
	var parts []string
	if p.Amount != 0 && p.Amount != expected.Total {
		parts = append(parts, fmt.Sprintf("amount_mismatch received=%d expected=%d", p.Amount, expected.Total))
	}
	if p.Currency != "" && !strings.EqualFold(p.Currency, currency) {
		parts = append(parts, fmt.Sprintf("currency_mismatch received=%s expected=%s", strings.ToUpper(p.Currency), currency))
	}
	return strings.Join(parts, "; ")
}

func resultLabel(res reconciliationdomain.Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.Duplicate:
		return "duplicate"
	case res.Outcome == reconciliationdomain.OutcomeApplied:
		return "applied"
	default:
		return "noop"
	}
}

func joinNote(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
