package testfixtures

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/club-reminders/internal/reminder"
)

var (
	taskCounter     uint64
	reminderCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Task fixtures -----------------------------

// TaskFixture represents a deterministic club task with assignees.
type TaskFixture struct {
	ID           string
	Title        string
	MeetingLabel string
	DueAt        *time.Time
	DueDate      string
	DueTime      string
	Assignees    []string
}

// TaskOption configures the generated task fixture.
type TaskOption func(*TaskFixture)

// NewTaskFixture returns a task due one day and two hours after
// ReferenceTime, so every lead time is still in the future.
func NewTaskFixture(opts ...TaskOption) TaskFixture {
	idx := atomic.AddUint64(&taskCounter, 1)
	due := referenceTime.Add(26 * time.Hour)
	fixture := TaskFixture{
		ID:           fmt.Sprintf("task-%03d", idx),
		Title:        fmt.Sprintf("Task %03d", idx),
		MeetingLabel: "Weekly meeting",
		DueAt:        &due,
		Assignees:    []string{fmt.Sprintf("member-%03d", idx)},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTaskID overrides the generated task ID.
func WithTaskID(id string) TaskOption {
	return func(f *TaskFixture) {
		f.ID = id
	}
}

// WithTaskTitle overrides the generated title.
func WithTaskTitle(title string) TaskOption {
	return func(f *TaskFixture) {
		f.Title = title
	}
}

// WithTaskMeetingLabel overrides the meeting label.
func WithTaskMeetingLabel(label string) TaskOption {
	return func(f *TaskFixture) {
		f.MeetingLabel = label
	}
}

// WithTaskDueAt sets an explicit due instant and clears any date strings.
func WithTaskDueAt(t time.Time) TaskOption {
	return func(f *TaskFixture) {
		due := t
		f.DueAt = &due
		f.DueDate = ""
		f.DueTime = ""
	}
}

// WithTaskDueDate sets a calendar due date with an optional "HH:MM" time.
func WithTaskDueDate(date, clock string) TaskOption {
	return func(f *TaskFixture) {
		f.DueAt = nil
		f.DueDate = date
		f.DueTime = clock
	}
}

// WithoutTaskDue removes every due date source.
func WithoutTaskDue() TaskOption {
	return func(f *TaskFixture) {
		f.DueAt = nil
		f.DueDate = ""
		f.DueTime = ""
	}
}

// WithTaskAssignees replaces the assignee list.
func WithTaskAssignees(ids ...string) TaskOption {
	return func(f *TaskFixture) {
		f.Assignees = append([]string(nil), ids...)
	}
}

// Task returns the domain representation of the fixture.
func (f TaskFixture) Task() reminder.Task {
	task := reminder.Task{
		ID:           f.ID,
		Title:        f.Title,
		MeetingLabel: f.MeetingLabel,
		DueDate:      f.DueDate,
		DueTime:      f.DueTime,
	}
	if f.DueAt != nil {
		due := *f.DueAt
		task.DueAt = &due
	}
	return task
}

// --------------------------- Reminder fixtures ---------------------------

// ReminderFixture represents a deterministic reminder record.
type ReminderFixture struct {
	TaskID       string
	RecipientID  string
	OffsetKind   reminder.OffsetKind
	FireAt       time.Time
	Title        string
	MeetingLabel string
	DueAt        time.Time
	Delivered    bool
	DeliveredAt  *time.Time
	RetryCount   int
	LastError    string
}

// ReminderOption configures the generated reminder fixture.
type ReminderOption func(*ReminderFixture)

// NewReminderFixture returns a pending two-hour reminder that fires at
// ReferenceTime.
func NewReminderFixture(opts ...ReminderOption) ReminderFixture {
	idx := atomic.AddUint64(&reminderCounter, 1)
	fixture := ReminderFixture{
		TaskID:       fmt.Sprintf("task-%03d", idx),
		RecipientID:  fmt.Sprintf("member-%03d", idx),
		OffsetKind:   reminder.OffsetTwoHours,
		FireAt:       referenceTime,
		Title:        fmt.Sprintf("Task %03d", idx),
		MeetingLabel: "Weekly meeting",
		DueAt:        referenceTime.Add(2 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithReminderTask overrides the task ID.
func WithReminderTask(id string) ReminderOption {
	return func(f *ReminderFixture) {
		f.TaskID = id
	}
}

// WithReminderRecipient overrides the recipient.
func WithReminderRecipient(id string) ReminderOption {
	return func(f *ReminderFixture) {
		f.RecipientID = id
	}
}

// WithReminderOffset sets the offset kind and derives the fire time from
// the due instant.
func WithReminderOffset(kind reminder.OffsetKind) ReminderOption {
	return func(f *ReminderFixture) {
		f.OffsetKind = kind
		if lead, ok := kind.Lead(); ok {
			f.FireAt = f.DueAt.Add(-lead)
		}
	}
}

// WithReminderFireAt overrides the fire time.
func WithReminderFireAt(t time.Time) ReminderOption {
	return func(f *ReminderFixture) {
		f.FireAt = t
	}
}

// WithReminderDelivered marks the reminder delivered at t.
func WithReminderDelivered(t time.Time) ReminderOption {
	return func(f *ReminderFixture) {
		at := t
		f.Delivered = true
		f.DeliveredAt = &at
	}
}

// WithReminderRetries records previous failed attempts.
func WithReminderRetries(count int, lastError string) ReminderOption {
	return func(f *ReminderFixture) {
		f.RetryCount = count
		f.LastError = lastError
	}
}

// Record returns the domain representation of the fixture without an ID.
func (f ReminderFixture) Record() reminder.Record {
	rec := reminder.Record{
		TaskID:      f.TaskID,
		RecipientID: f.RecipientID,
		OffsetKind:  f.OffsetKind,
		FireAt:      f.FireAt,
		Snapshot: reminder.Snapshot{
			Title:        f.Title,
			MeetingLabel: f.MeetingLabel,
			DueAt:        f.DueAt,
		},
		Delivered:  f.Delivered,
		RetryCount: f.RetryCount,
		LastError:  f.LastError,
	}
	if f.DeliveredAt != nil {
		at := *f.DeliveredAt
		rec.DeliveredAt = &at
	}
	return rec
}

// ------------------------------ Delivery ---------------------------------

// Delivered captures a single notification handed to a RecordingSink.
type Delivered struct {
	RecipientID  string
	Notification reminder.Notification
}

// RecordingSink is a delivery sink that records notifications and can be
// told to fail for specific recipients.
type RecordingSink struct {
	mu        sync.Mutex
	delivered []Delivered
	failFor   map[string]error
}

// NewRecordingSink returns an empty sink that accepts every delivery.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{failFor: make(map[string]error)}
}

// FailFor makes deliveries to recipientID return err. A nil err clears it.
func (s *RecordingSink) FailFor(recipientID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failFor, recipientID)
		return
	}
	s.failFor[recipientID] = err
}

// Deliver records n unless the recipient is configured to fail.
func (s *RecordingSink) Deliver(ctx context.Context, recipientID string, n reminder.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[recipientID]; ok {
		return err
	}
	s.delivered = append(s.delivered, Delivered{RecipientID: recipientID, Notification: n})
	return nil
}

// Delivered returns a copy of every successful delivery in order.
func (s *RecordingSink) Delivered() []Delivered {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivered, len(s.delivered))
	copy(out, s.delivered)
	return out
}
