package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/club-reminders/internal/delivery"
	"github.com/example/club-reminders/internal/metrics"
	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

type sweepOutcome int

const (
	outcomeDelivered sweepOutcome = iota
	outcomeFailed
	outcomeDeadLettered
)

// ReminderSweeper delivers due reminders and applies the retry policy to
// failed deliveries. It is the only component that mutates records after
// they are created, apart from retention cleanup.
type ReminderSweeper struct {
	store    persistence.ReminderStore
	sink     delivery.Sink
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger
	metrics  metrics.Recorder
	observer DeadLetterObserver
}

// NewReminderSweeper constructs a sweeper with the provided dependencies.
// Zero policy fields fall back to DefaultPolicy.
func NewReminderSweeper(store persistence.ReminderStore, sink delivery.Sink, policy Policy, now func() time.Time) *ReminderSweeper {
	return NewReminderSweeperWithLogger(store, sink, policy, now, nil)
}

// NewReminderSweeperWithLogger constructs a sweeper with a specified logger.
func NewReminderSweeperWithLogger(store persistence.ReminderStore, sink delivery.Sink, policy Policy, now func() time.Time, logger *slog.Logger) *ReminderSweeper {
	if now == nil {
		now = time.Now
	}
	return &ReminderSweeper{
		store:   store,
		sink:    sink,
		policy:  policy.withDefaults(),
		now:     now,
		logger:  defaultLogger(logger),
		metrics: metrics.Nop{},
	}
}

// WithMetrics sets the recorder for sweep outcomes.
func (s *ReminderSweeper) WithMetrics(recorder metrics.Recorder) *ReminderSweeper {
	s.metrics = metrics.OrNop(recorder)
	return s
}

// WithDeadLetterObserver registers an observer for dropped records.
func (s *ReminderSweeper) WithDeadLetterObserver(observer DeadLetterObserver) *ReminderSweeper {
	s.observer = observer
	return s
}

// Policy returns the effective retry policy.
func (s *ReminderSweeper) Policy() Policy {
	return s.policy
}

func (s *ReminderSweeper) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReminderSweeper", operation, attrs...)
}

// ProcessDue runs one sweep. Undelivered records are loaded with an equality
// query and filtered on fire time in memory. Each due record is delivered
// independently; a failed record never stops the others. When the query
// itself fails the run is aborted before any record is touched. A cancelled
// context stops dispatching further records and is returned with the partial
// counts.
func (s *ReminderSweeper) ProcessDue(ctx context.Context) (res SweepResult, err error) {
	if s == nil {
		err = fmt.Errorf("ReminderSweeper is nil")
		return
	}
	if s.store == nil || s.sink == nil {
		err = fmt.Errorf("reminder store and notification sink must be configured")
		return
	}

	start := time.Now()
	logger := s.loggerWith(ctx, "ProcessDue")
	defer func() {
		elapsed := time.Since(start)
		s.metrics.SweepDuration(elapsed)
		if err != nil {
			logger.ErrorContext(ctx, "sweep failed",
				"error", err,
				"error_kind", ErrorKind(err),
				"delivered", res.Delivered,
				"failed", res.Failed,
				"dead_lettered", res.DeadLettered,
			)
			return
		}
		logger.InfoContext(ctx, "sweep complete",
			"delivered", res.Delivered,
			"failed", res.Failed,
			"dead_lettered", res.DeadLettered,
			"duration", elapsed,
		)
	}()

	var pending []reminder.Record
	pending, err = s.store.QueryByField(ctx, persistence.FieldDelivered, false)
	if err != nil {
		err = fmt.Errorf("query undelivered reminders: %w", err)
		return
	}

	now := reminder.Millis(s.now())
	var delivered, failed, deadLettered atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.policy.Concurrency)
	for _, rec := range pending {
		rec := rec
		if !rec.Due(now) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch s.processOne(ctx, logger, now, rec) {
			case outcomeDelivered:
				delivered.Add(1)
			case outcomeDeadLettered:
				deadLettered.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res = SweepResult{
		Delivered:    int(delivered.Load()),
		Failed:       int(failed.Load()),
		DeadLettered: int(deadLettered.Load()),
	}
	err = ctx.Err()
	return
}

func (s *ReminderSweeper) processOne(ctx context.Context, logger *slog.Logger, now time.Time, rec reminder.Record) sweepOutcome {
	logger = logger.With(
		"reminder_id", rec.ID,
		"task_id", rec.TaskID,
		"recipient_id", rec.RecipientID,
		"offset_kind", rec.OffsetKind,
	)

	if rec.RetryCount >= s.policy.MaxRetries {
		return s.deadLetter(ctx, logger, now, rec, rec.RetryCount, rec.LastError)
	}

	n, err := reminder.RenderReminder(rec)
	if err == nil {
		n.CreatedAt = now
		err = s.sink.Deliver(ctx, rec.RecipientID, n)
	}
	if err != nil {
		return s.handleFailure(ctx, logger, now, rec, err)
	}

	if err := s.store.UpdateFields(ctx, rec.ID, persistence.MarkDelivered(now)); err != nil {
		// The notification is out; the record stays undelivered and will be
		// sent again on a later sweep.
		logger.WarnContext(ctx, "reminder delivered but not marked", "error", err, "error_kind", ErrorKind(err))
		s.metrics.ReminderDeliveryFailed()
		return outcomeFailed
	}
	s.metrics.ReminderDelivered()
	logger.DebugContext(ctx, "reminder delivered")
	return outcomeDelivered
}

func (s *ReminderSweeper) handleFailure(ctx context.Context, logger *slog.Logger, now time.Time, rec reminder.Record, cause error) sweepOutcome {
	s.metrics.ReminderDeliveryFailed()
	retries := rec.RetryCount + 1
	lastError := cause.Error()

	if retries >= s.policy.MaxRetries {
		return s.deadLetter(ctx, logger, now, rec, retries, lastError)
	}

	next := now.Add(s.policy.RetryBackoff)
	if err := s.store.UpdateFields(ctx, rec.ID, persistence.Reschedule(retries, next, lastError)); err != nil {
		logger.WarnContext(ctx, "failed to reschedule reminder",
			"error", err,
			"error_kind", ErrorKind(err),
			"delivery_error", lastError,
		)
		return outcomeFailed
	}
	logger.WarnContext(ctx, "reminder delivery failed",
		"error", cause,
		"retry_count", retries,
		"next_fire_at", next,
	)
	return outcomeFailed
}

// deadLetter drops a record that has exhausted its retries. When the delete
// fails the exhausted retry count is persisted so later sweeps skip delivery
// and only retry the delete.
func (s *ReminderSweeper) deadLetter(ctx context.Context, logger *slog.Logger, now time.Time, rec reminder.Record, retries int, lastError string) sweepOutcome {
	if err := s.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		logger.WarnContext(ctx, "failed to dead-letter reminder",
			"error", err,
			"error_kind", ErrorKind(err),
			"retry_count", retries,
		)
		if retries != rec.RetryCount {
			next := now.Add(s.policy.RetryBackoff)
			if err := s.store.UpdateFields(ctx, rec.ID, persistence.Reschedule(retries, next, lastError)); err != nil {
				logger.WarnContext(ctx, "failed to record exhausted retries", "error", err, "error_kind", ErrorKind(err))
			}
		}
		return outcomeFailed
	}

	dead := rec.Clone()
	dead.RetryCount = retries
	dead.LastError = lastError
	logger.WarnContext(ctx, "reminder dead-lettered",
		"retry_count", retries,
		"last_error", lastError,
	)
	s.metrics.ReminderDeadLettered()
	if s.observer != nil {
		s.observer.DeadLettered(ctx, dead)
	}
	return outcomeDeadLettered
}
