package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/club-reminders/internal/metrics"
	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

// ReminderScheduler writes one reminder record per assignee and lead time
// that is still in the future. It only ever inserts.
type ReminderScheduler struct {
	store    persistence.ReminderStore
	now      func() time.Time
	logger   *slog.Logger
	metrics  metrics.Recorder
	location *time.Location
}

// NewReminderScheduler constructs a scheduler with the provided dependencies.
func NewReminderScheduler(store persistence.ReminderStore, now func() time.Time) *ReminderScheduler {
	return NewReminderSchedulerWithLogger(store, now, nil)
}

// NewReminderSchedulerWithLogger constructs a scheduler with a specified logger.
func NewReminderSchedulerWithLogger(store persistence.ReminderStore, now func() time.Time, logger *slog.Logger) *ReminderScheduler {
	if now == nil {
		now = time.Now
	}
	return &ReminderScheduler{
		store:    store,
		now:      now,
		logger:   defaultLogger(logger),
		metrics:  metrics.Nop{},
		location: time.UTC,
	}
}

// WithMetrics sets the recorder for created records.
func (s *ReminderScheduler) WithMetrics(recorder metrics.Recorder) *ReminderScheduler {
	s.metrics = metrics.OrNop(recorder)
	return s
}

// WithLocation sets the zone used for tasks that carry a calendar date
// rather than an absolute due time.
func (s *ReminderScheduler) WithLocation(loc *time.Location) *ReminderScheduler {
	if loc != nil {
		s.location = loc
	}
	return s
}

func (s *ReminderScheduler) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReminderScheduler", operation, attrs...)
}

// Schedule creates the reminder records for task and assignees. A task
// without a due date, or without assignees, schedules nothing. Records that
// already exist for the same recipient, offset and fire time are skipped, so
// calling Schedule again after a task edit is safe. A failed insert does not
// stop the remaining inserts; all failures are returned joined.
func (s *ReminderScheduler) Schedule(ctx context.Context, task reminder.Task, assignees []string) (res ScheduleResult, err error) {
	if s == nil {
		err = fmt.Errorf("ReminderScheduler is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("reminder store not configured")
		return
	}

	logger := s.loggerWith(ctx, "Schedule",
		"task_id", task.ID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to schedule reminders",
				"error", err,
				"error_kind", ErrorKind(err),
				"created", res.Created,
			)
			return
		}
		logger.InfoContext(ctx, "reminders scheduled",
			"created", res.Created,
			"skipped", res.Skipped,
		)
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(task.ID) == "" {
		vErr.add("task_id", "task id is required")
	}
	due, ok, parseErr := task.ResolveDue(s.location)
	if parseErr != nil {
		vErr.add("due", "due date must be YYYY-MM-DD with an optional HH:MM time")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	recipients := uniqueRecipients(assignees)
	if !ok || len(recipients) == 0 {
		return
	}

	now := s.now()
	snapshot := task.SnapshotAt(due)
	var leads []reminder.LeadTime
	for _, lead := range reminder.LeadTimes() {
		if snapshot.DueAt.Add(-lead.Before).After(now) {
			leads = append(leads, lead)
		}
	}
	if len(leads) == 0 {
		return
	}

	var existing []reminder.Record
	existing, err = s.store.QueryByField(ctx, persistence.FieldTaskID, task.ID)
	if err != nil {
		err = fmt.Errorf("load existing reminders: %w", err)
		return
	}
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[scheduleKey(rec.RecipientID, rec.OffsetKind, rec.FireAt)] = struct{}{}
	}

	var errs []error
	for _, lead := range leads {
		fireAt := snapshot.DueAt.Add(-lead.Before)
		for _, recipient := range recipients {
			key := scheduleKey(recipient, lead.Kind, fireAt)
			if _, dup := seen[key]; dup {
				res.Skipped++
				continue
			}

			rec := reminder.Record{
				TaskID:      task.ID,
				RecipientID: recipient,
				OffsetKind:  lead.Kind,
				FireAt:      fireAt,
				Snapshot:    snapshot,
			}
			if _, insertErr := s.store.Insert(ctx, rec); insertErr != nil {
				errs = append(errs, fmt.Errorf("insert %s reminder for %s: %w", lead.Kind, recipient, insertErr))
				continue
			}
			seen[key] = struct{}{}
			res.Created++
		}
	}

	if res.Created > 0 {
		s.metrics.RemindersScheduled(res.Created)
	}
	err = errors.Join(errs...)
	return
}

func scheduleKey(recipientID string, kind reminder.OffsetKind, fireAt time.Time) string {
	return fmt.Sprintf("%s|%s|%d", recipientID, kind, fireAt.UnixMilli())
}

// uniqueRecipients trims ids, drops blanks, and keeps the first occurrence
// of each id in input order.
func uniqueRecipients(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
