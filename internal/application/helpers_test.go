package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/persistence/memory"
	"github.com/example/club-reminders/internal/reminder"
)

var baseTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dueTask(id string, due time.Time) reminder.Task {
	return reminder.Task{
		ID:           id,
		Title:        "Submit design draft",
		MeetingLabel: "Weekly sync",
		DueAt:        &due,
	}
}

func allRecords(t *testing.T, store persistence.ReminderStore) []reminder.Record {
	t.Helper()
	ctx := context.Background()
	pending, err := store.QueryByField(ctx, persistence.FieldDelivered, false)
	if err != nil {
		t.Fatalf("query undelivered failed: %v", err)
	}
	sent, err := store.QueryByField(ctx, persistence.FieldDelivered, true)
	if err != nil {
		t.Fatalf("query delivered failed: %v", err)
	}
	out := append(pending, sent...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func insertRecord(t *testing.T, store persistence.ReminderStore, rec reminder.Record) reminder.Record {
	t.Helper()
	if rec.TaskID == "" {
		rec.TaskID = "task-1"
	}
	if rec.RecipientID == "" {
		rec.RecipientID = "user-a"
	}
	if rec.OffsetKind == "" {
		rec.OffsetKind = reminder.OffsetTwoHours
	}
	if rec.Snapshot.Title == "" {
		rec.Snapshot = reminder.Snapshot{Title: "Submit design draft", MeetingLabel: "Weekly sync", DueAt: rec.FireAt.Add(2 * time.Hour)}
	}
	id, err := store.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	rec.ID = id
	return rec
}

type recordingSink struct {
	mu        sync.Mutex
	failFor   map[string]error
	err       error
	attempts  int
	delivered []delivered
}

type delivered struct {
	recipientID  string
	notification reminder.Notification
}

func (s *recordingSink) Deliver(_ context.Context, recipientID string, n reminder.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if err, ok := s.failFor[recipientID]; ok {
		return err
	}
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, delivered{recipientID: recipientID, notification: n})
	return nil
}

func (s *recordingSink) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

// storeStub wraps a memory store and injects failures per operation.
type storeStub struct {
	*memory.Store

	mu          sync.Mutex
	queryErr    error
	insertErrAt map[int]error
	inserts     int
	updateErr   error
	deleteErr   error
	updates     int
	deletes     int
}

func newStoreStub() *storeStub {
	return &storeStub{Store: memory.New()}
}

func (s *storeStub) Insert(ctx context.Context, rec reminder.Record) (string, error) {
	s.mu.Lock()
	s.inserts++
	err := s.insertErrAt[s.inserts]
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.Store.Insert(ctx, rec)
}

func (s *storeStub) QueryByField(ctx context.Context, field persistence.Field, value any) ([]reminder.Record, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.Store.QueryByField(ctx, field, value)
}

func (s *storeStub) UpdateFields(ctx context.Context, id string, patch persistence.Patch) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.Store.UpdateFields(ctx, id, patch)
}

func (s *storeStub) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, id)
}

var errBoom = errors.New("boom")
