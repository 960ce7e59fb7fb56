package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"github.com/smallbiznis/nestbill/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errLostRace marks a ledger insert that lost to a concurrent delivery of the
// same event.
var errLostRace = errors.New("processed_event_exists")

const retryBackoff = 25 * time.Millisecond

// run executes fn in one transaction bounded by the engine timeout, retrying
// on lock and version conflicts. fn must be safe to call again.
func (e *Engine) run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err = e.db.WithContext(ctx).Transaction(fn)
		if err == nil || errors.Is(err, errLostRace) {
			return err
		}
		if ctx.Err() != nil || db.IsTimeoutErr(err) {
			cause := ctx.Err()
			if cause == nil {
				cause = err
			}
			return fmt.Errorf("%w: %w", reconciliationdomain.ErrProcessingTimeout, cause)
		}
		if !retryable(err) {
			return err
		}

		reason := conflictReason(err)
		e.metrics.RecordReconcileConflict(ctx, reason)
		e.log.Warn("unit of work conflict",
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
			zap.Error(err),
		)
		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * retryBackoff):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", reconciliationdomain.ErrProcessingTimeout, ctx.Err())
		}
	}
	return fmt.Errorf("%w: %v", reconciliationdomain.ErrPersistenceConflict, err)
}

func retryable(err error) bool {
	return db.IsConflictErr(err) ||
		isDuplicateKey(err) ||
		errors.Is(err, subscriptiondomain.ErrVersionConflict)
}

func conflictReason(err error) string {
	switch {
	case errors.Is(err, subscriptiondomain.ErrVersionConflict):
		return "version_mismatch"
	case isDuplicateKey(err):
		return "unique_violation"
	default:
		return "lock_conflict"
	}
}

func isDuplicateKey(err error) bool {
	return db.IsDuplicateKeyErr(err)
}
