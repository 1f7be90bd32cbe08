package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/club-reminders/internal/metrics"
	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

// RetentionJanitor removes delivered reminders once they are older than the
// retention window. Undelivered records are never touched.
type RetentionJanitor struct {
	store   persistence.ReminderStore
	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewRetentionJanitor constructs a janitor with the provided dependencies.
func NewRetentionJanitor(store persistence.ReminderStore, now func() time.Time) *RetentionJanitor {
	return NewRetentionJanitorWithLogger(store, now, nil)
}

// NewRetentionJanitorWithLogger constructs a janitor with a specified logger.
func NewRetentionJanitorWithLogger(store persistence.ReminderStore, now func() time.Time, logger *slog.Logger) *RetentionJanitor {
	if now == nil {
		now = time.Now
	}
	return &RetentionJanitor{store: store, now: now, logger: defaultLogger(logger), metrics: metrics.Nop{}}
}

// WithMetrics sets the recorder for deleted records.
func (j *RetentionJanitor) WithMetrics(recorder metrics.Recorder) *RetentionJanitor {
	j.metrics = metrics.OrNop(recorder)
	return j
}

func (j *RetentionJanitor) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, j.logger, "RetentionJanitor", operation, attrs...)
}

// Cleanup deletes every delivered record whose delivery time is older than
// retention and returns how many were removed. Records that vanish between
// the query and the delete are not counted and not reported.
func (j *RetentionJanitor) Cleanup(ctx context.Context, retention time.Duration) (deleted int, err error) {
	if j == nil {
		err = fmt.Errorf("RetentionJanitor is nil")
		return
	}
	if j.store == nil {
		err = fmt.Errorf("reminder store not configured")
		return
	}

	logger := j.loggerWith(ctx, "Cleanup", "retention", retention)
	defer func() {
		if deleted > 0 {
			j.metrics.RemindersCleaned(deleted)
		}
		if err != nil {
			logger.ErrorContext(ctx, "cleanup failed", "error", err, "error_kind", ErrorKind(err), "deleted", deleted)
			return
		}
		logger.InfoContext(ctx, "cleanup complete", "deleted", deleted)
	}()

	if retention < 0 {
		vErr := &ValidationError{}
		vErr.add("retention", "retention must not be negative")
		err = vErr
		return
	}

	var sent []reminder.Record
	sent, err = j.store.QueryByField(ctx, persistence.FieldDelivered, true)
	if err != nil {
		err = fmt.Errorf("query delivered reminders: %w", err)
		return
	}

	cutoff := j.now().Add(-retention)
	var errs []error
	for _, rec := range sent {
		if !rec.DeliveredBefore(cutoff) {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			break
		}
		if delErr := j.store.Delete(ctx, rec.ID); delErr != nil {
			if errors.Is(delErr, persistence.ErrNotFound) {
				continue
			}
			logger.WarnContext(ctx, "failed to delete reminder", "reminder_id", rec.ID, "error", delErr)
			errs = append(errs, fmt.Errorf("delete reminder %s: %w", rec.ID, delErr))
			continue
		}
		deleted++
	}
	err = errors.Join(errs...)
	return
}
