package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	"github.com/smallbiznis/nestbill/internal/auditcontext"
	"github.com/smallbiznis/nestbill/internal/clock"
	obsmetrics "github.com/smallbiznis/nestbill/internal/observability/metrics"
	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const JobAdvanceDue = "advance_due"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Engine  reconciliationdomain.Engine
	Subs    subscriptiondomain.Repository
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config                     `optional:"true"`
	Leader  Leader                     `optional:"true"`
	Metrics *obsmetrics.SweeperMetrics `optional:"true"`
}

// Scheduler sweeps subscriptions whose time-driven transitions are due.
// Reads also apply them lazily, so a missed tick delays nothing a customer
// can observe.
type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	engine  reconciliationdomain.Engine
	subs    subscriptiondomain.Repository
	leader  Leader
	metrics *obsmetrics.SweeperMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Engine == nil || p.Subs == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		engine:  p.Engine,
		subs:    p.Subs,
		leader:  p.Leader,
		metrics: p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run := s.newJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)

	err := fn(ctx, run)
	s.metrics.ObserveRun(name, time.Since(start), run.processed, err)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout: the next tick resumes where this one stopped
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once. With a leader configured, only the
// replica holding the lock sweeps.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if s.leader != nil {
		token, ok, err := s.leader.TryLock(parent, leaderKey, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire sweeper lock: %w", err)
		}
		if !ok {
			s.metrics.ObserveSkipped(JobAdvanceDue)
			s.log.Debug("sweep skipped, another replica holds the lock")
			return nil
		}
		defer func() {
			if err := s.leader.Release(context.WithoutCancel(parent), leaderKey, token); err != nil {
				s.log.Warn("release sweeper lock", zap.Error(err))
			}
		}()
	}

	var err error
	if s.isJobEnabled(JobAdvanceDue) {
		err = errors.Join(err, s.runJob(parent, JobAdvanceDue, s.cfg.BatchSize, s.cfg.JobTimeout, s.AdvanceDueJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// AdvanceDueJob applies due trial expiries, grace expiries and deferred
// cancellations in batches. A subscription that fails is retried on the
// next tick, not within this run.
func (s *Scheduler) AdvanceDueJob(ctx context.Context, run *jobRun) error {
	now := s.clock.Now()
	seen := map[snowflake.ID]struct{}{}
	var jobErr error

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		limit := s.cfg.BatchSize + len(seen)
		ids, err := s.subs.ListDueIDs(ctx, s.db, now, limit)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.due.list_failed", err)
			return errors.Join(jobErr, err)
		}

		fresh := 0
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			fresh++

			view, err := s.engine.Advance(ctx, id)
			if err != nil {
				jobErr = errors.Join(jobErr, fmt.Errorf("subscription %s: %w", id, err))
				s.logJobError(ctx, run, "scheduler.subscription.advance_failed", err,
					zap.String("subscription_id", id.String()),
				)
				continue
			}
			run.Advanced(view.Status)
			s.logger(ctx).Debug("scheduler.subscription.advanced",
				zap.String("subscription_id", id.String()),
				zap.String("status", string(view.Status)),
			)
		}
		if fresh == 0 || len(ids) < limit {
			return jobErr
		}
	}
}
