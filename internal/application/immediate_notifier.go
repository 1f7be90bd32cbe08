package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/club-reminders/internal/delivery"
	"github.com/example/club-reminders/internal/metrics"
	"github.com/example/club-reminders/internal/reminder"
)

// ImmediateNotifier sends the one-shot "task assigned" notification. It does
// not touch the reminder store and never retries.
type ImmediateNotifier struct {
	sink     delivery.Sink
	now      func() time.Time
	logger   *slog.Logger
	metrics  metrics.Recorder
	location *time.Location
}

// NewImmediateNotifier constructs a notifier delivering through sink.
func NewImmediateNotifier(sink delivery.Sink, now func() time.Time) *ImmediateNotifier {
	return NewImmediateNotifierWithLogger(sink, now, nil)
}

// NewImmediateNotifierWithLogger constructs a notifier with a specified logger.
func NewImmediateNotifierWithLogger(sink delivery.Sink, now func() time.Time, logger *slog.Logger) *ImmediateNotifier {
	if now == nil {
		now = time.Now
	}
	return &ImmediateNotifier{
		sink:     sink,
		now:      now,
		logger:   defaultLogger(logger),
		metrics:  metrics.Nop{},
		location: time.UTC,
	}
}

// WithMetrics sets the recorder for delivery outcomes.
func (s *ImmediateNotifier) WithMetrics(recorder metrics.Recorder) *ImmediateNotifier {
	s.metrics = metrics.OrNop(recorder)
	return s
}

// WithLocation sets the zone used to resolve calendar due dates.
func (s *ImmediateNotifier) WithLocation(loc *time.Location) *ImmediateNotifier {
	if loc != nil {
		s.location = loc
	}
	return s
}

func (s *ImmediateNotifier) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ImmediateNotifier", operation, attrs...)
}

// NotifyAssignment tells recipientID that task was assigned to them. The
// delivery error is returned as is; the assignment itself is not affected.
func (s *ImmediateNotifier) NotifyAssignment(ctx context.Context, recipientID string, task reminder.Task) (err error) {
	if s == nil {
		return fmt.Errorf("ImmediateNotifier is nil")
	}
	if s.sink == nil {
		return fmt.Errorf("notification sink not configured")
	}

	logger := s.loggerWith(ctx, "NotifyAssignment",
		"task_id", task.ID,
		"recipient_id", recipientID,
	)
	delivered := false
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to notify assignment", "error", err, "error_kind", ErrorKind(err))
		} else {
			logger.InfoContext(ctx, "assignment notification delivered")
		}
		if delivered {
			s.metrics.AssignmentNotification(metrics.ResultDelivered)
		} else if !isValidation(err) {
			s.metrics.AssignmentNotification(metrics.ResultFailed)
		}
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(recipientID) == "" {
		vErr.add("recipient_id", "recipient is required")
	}
	if strings.TrimSpace(task.ID) == "" {
		vErr.add("task_id", "task id is required")
	}
	due, _, parseErr := task.ResolveDue(s.location)
	if parseErr != nil {
		vErr.add("due", "due date must be YYYY-MM-DD with an optional HH:MM time")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	n := reminder.RenderAssignment(task, due)
	n.CreatedAt = reminder.Millis(s.now())
	if err = s.sink.Deliver(ctx, strings.TrimSpace(recipientID), n); err != nil {
		err = fmt.Errorf("deliver assignment notification: %w", err)
		return
	}
	delivered = true
	return
}

func isValidation(err error) bool {
	return ErrorKind(err) == "validation"
}
