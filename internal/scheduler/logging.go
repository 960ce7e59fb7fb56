package scheduler

import (
	"context"
	"sort"
	"time"

	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	"github.com/smallbiznis/nestbill/internal/auditcontext"
	obscontext "github.com/smallbiznis/nestbill/internal/observability/context"
	obslogger "github.com/smallbiznis/nestbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nestbill/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"go.uber.org/zap"
)

const schedulerActorID = "scheduler"

// jobRun tallies one sweep. Counts are keyed by the status each
// subscription ended in.
type jobRun struct {
	job        string
	runID      string
	batchSize  int
	startedAt  time.Time
	processed  int
	errorCount int
	byStatus   map[subscriptiondomain.Status]int
}

func (r *jobRun) Advanced(status subscriptiondomain.Status) {
	if r == nil {
		return
	}
	r.processed++
	if r.byStatus == nil {
		r.byStatus = map[subscriptiondomain.Status]int{}
	}
	r.byStatus[status]++
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (r *jobRun) statusFields() []zap.Field {
	statuses := make([]string, 0, len(r.byStatus))
	for status := range r.byStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)

	fields := make([]zap.Field, 0, len(statuses))
	for _, status := range statuses {
		fields = append(fields, zap.Int("status_"+status, r.byStatus[subscriptiondomain.Status(status)]))
	}
	return fields
}

// newJobRun tags ctx so audit entries and logs written during the sweep are
// attributed to the scheduler under one run id.
func (s *Scheduler) newJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: time.Now(),
	}
	actor := string(auditdomain.ActorTypeSystem)
	ctx = obscontext.WithActor(ctx, actor, schedulerActorID)
	ctx = obscontext.WithRequestID(ctx, run.runID)
	ctx = auditcontext.WithActor(ctx, actor, schedulerActorID)
	ctx = auditcontext.WithRequestID(ctx, run.runID)
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", run.job),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := append([]zap.Field{
		zap.String("job", run.job),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.errorCount),
	}, run.statusFields()...)

	log := s.logger(ctx)
	switch {
	case run.errorCount > 0:
		log.Warn("scheduler.job.finish", fields...)
	case run.processed == 0:
		log.Debug("scheduler.job.finish", fields...)
	default:
		log.Info("scheduler.job.finish", fields...)
	}
}

func (s *Scheduler) logJobError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	s.logger(ctx).Error(msg, append([]zap.Field{
		zap.String("job", run.job),
		zap.String("error_type", obsmetrics.ClassifySweepError(err)),
		zap.Error(err),
	}, fields...)...)
}
