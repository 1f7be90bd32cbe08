// Package persistencetest holds the behaviour every persistence.Store backend
// must share. Backend packages run it from their own tests.
package persistencetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

// OpenFunc returns a fresh, empty store. Cleanup is registered on t.
type OpenFunc func(t *testing.T) persistence.Store

var reference = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func record(taskID, recipientID string, kind reminder.OffsetKind) reminder.Record {
	due := reference.Add(48 * time.Hour)
	lead, _ := kind.Lead()
	return reminder.Record{
		TaskID:      taskID,
		RecipientID: recipientID,
		OffsetKind:  kind,
		FireAt:      due.Add(-lead),
		Snapshot: reminder.Snapshot{
			Title:        "Submit design draft",
			MeetingLabel: "Weekly Sync",
			DueAt:        due,
		},
	}
}

// Run exercises the full store contract against stores produced by open.
func Run(t *testing.T, open OpenFunc) {
	t.Helper()

	t.Run("inserts and queries by every indexed field", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)

		inserted := map[string]reminder.Record{}
		for _, rec := range []reminder.Record{
			record("task-1", "user-a", reminder.OffsetOneDay),
			record("task-1", "user-b", reminder.OffsetOneDay),
			record("task-2", "user-a", reminder.OffsetTwoHours),
		} {
			id, err := store.Insert(ctx, rec)
			if err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
			if id == "" {
				t.Fatalf("expected backend to assign an id")
			}
			if _, dup := inserted[id]; dup {
				t.Fatalf("expected unique ids, got %s twice", id)
			}
			inserted[id] = rec
		}

		byTask, err := store.QueryByField(ctx, persistence.FieldTaskID, "task-1")
		if err != nil {
			t.Fatalf("QueryByField taskId failed: %v", err)
		}
		if len(byTask) != 2 {
			t.Fatalf("expected 2 records for task-1, got %d", len(byTask))
		}
		for _, got := range byTask {
			want, ok := inserted[got.ID]
			if !ok {
				t.Fatalf("unexpected id %s", got.ID)
			}
			if got.TaskID != want.TaskID || got.RecipientID != want.RecipientID || got.OffsetKind != want.OffsetKind {
				t.Fatalf("expected %+v, got %+v", want, got)
			}
			if !got.FireAt.Equal(want.FireAt) {
				t.Fatalf("expected fireAt %s, got %s", want.FireAt, got.FireAt)
			}
			if got.Snapshot.Title != want.Snapshot.Title || got.Snapshot.MeetingLabel != want.Snapshot.MeetingLabel ||
				!got.Snapshot.DueAt.Equal(want.Snapshot.DueAt) {
				t.Fatalf("expected snapshot %+v, got %+v", want.Snapshot, got.Snapshot)
			}
			if got.Delivered || got.DeliveredAt != nil || got.RetryCount != 0 || got.LastError != "" {
				t.Fatalf("expected fresh delivery state, got %+v", got)
			}
		}

		byRecipient, err := store.QueryByField(ctx, persistence.FieldRecipientID, "user-a")
		if err != nil {
			t.Fatalf("QueryByField recipientId failed: %v", err)
		}
		if len(byRecipient) != 2 {
			t.Fatalf("expected 2 records for user-a, got %d", len(byRecipient))
		}

		pending, err := store.QueryByField(ctx, persistence.FieldDelivered, false)
		if err != nil {
			t.Fatalf("QueryByField delivered failed: %v", err)
		}
		if len(pending) != 3 {
			t.Fatalf("expected 3 pending records, got %d", len(pending))
		}

		none, err := store.QueryByField(ctx, persistence.FieldTaskID, "missing")
		if err != nil {
			t.Fatalf("QueryByField for missing task failed: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("expected no records, got %d", len(none))
		}
	})

	t.Run("rejects unsupported fields", func(t *testing.T) {
		store := open(t)
		_, err := store.QueryByField(context.Background(), persistence.Field("fireAt"), reference)
		if !errors.Is(err, persistence.ErrUnsupportedField) {
			t.Fatalf("expected ErrUnsupportedField, got %v", err)
		}
	})

	t.Run("rejects invalid records", func(t *testing.T) {
		store := open(t)
		rec := record("task-1", "", reminder.OffsetOneDay)
		if _, err := store.Insert(context.Background(), rec); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})

	t.Run("applies partial updates", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)

		id, err := store.Insert(ctx, record("task-1", "user-a", reminder.OffsetFiveHours))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		next := reference.Add(90 * time.Minute)
		if err := store.UpdateFields(ctx, id, persistence.Reschedule(1, next, "boom")); err != nil {
			t.Fatalf("UpdateFields reschedule failed: %v", err)
		}
		got := only(t, store, "task-1")
		if got.RetryCount != 1 || got.LastError != "boom" || !got.FireAt.Equal(next) || got.Delivered {
			t.Fatalf("unexpected record after reschedule: %+v", got)
		}

		deliveredAt := reference.Add(2 * time.Hour)
		if err := store.UpdateFields(ctx, id, persistence.MarkDelivered(deliveredAt)); err != nil {
			t.Fatalf("UpdateFields delivered failed: %v", err)
		}
		got = only(t, store, "task-1")
		if !got.Delivered || got.DeliveredAt == nil || !got.DeliveredAt.Equal(deliveredAt) {
			t.Fatalf("unexpected record after delivery: %+v", got)
		}
		if got.RetryCount != 1 || got.LastError != "boom" {
			t.Fatalf("expected untouched retry state, got %+v", got)
		}

		pending, err := store.QueryByField(ctx, persistence.FieldDelivered, false)
		if err != nil {
			t.Fatalf("QueryByField delivered failed: %v", err)
		}
		if len(pending) != 0 {
			t.Fatalf("expected no pending records, got %d", len(pending))
		}

		if err := store.UpdateFields(ctx, "does-not-exist", persistence.MarkDelivered(deliveredAt)); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("deletes records", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)

		id, err := store.Insert(ctx, record("task-1", "user-a", reminder.OffsetTenHours))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := store.Delete(ctx, id); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := store.Delete(ctx, id); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
		left, err := store.QueryByField(ctx, persistence.FieldTaskID, "task-1")
		if err != nil {
			t.Fatalf("QueryByField failed: %v", err)
		}
		if len(left) != 0 {
			t.Fatalf("expected record to be gone, got %+v", left)
		}
	})

	t.Run("keeps a newest-first notification feed per recipient", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)

		for i, title := range []string{"first", "second", "third"} {
			n := reminder.Notification{
				Title:      title,
				Message:    "message " + title,
				Category:   reminder.CategoryTaskReminder,
				LinkTarget: reminder.TaskLink("task-1"),
				Payload:    map[string]string{reminder.PayloadTaskID: "task-1"},
				CreatedAt:  reference.Add(time.Duration(i) * time.Minute),
			}
			if _, err := store.AppendNotification(ctx, "user-a", n); err != nil {
				t.Fatalf("AppendNotification failed: %v", err)
			}
		}
		if _, err := store.AppendNotification(ctx, "user-b", reminder.Notification{
			Title:     "other",
			Category:  reminder.CategoryTaskAssignment,
			CreatedAt: reference,
		}); err != nil {
			t.Fatalf("AppendNotification failed: %v", err)
		}

		feed, err := store.ListNotifications(ctx, "user-a", 0)
		if err != nil {
			t.Fatalf("ListNotifications failed: %v", err)
		}
		if len(feed) != 3 {
			t.Fatalf("expected 3 notifications, got %d", len(feed))
		}
		if feed[0].Title != "third" || feed[2].Title != "first" {
			t.Fatalf("expected newest first, got %q..%q", feed[0].Title, feed[2].Title)
		}
		if feed[0].RecipientID != "user-a" || feed[0].ID == "" {
			t.Fatalf("unexpected stored notification: %+v", feed[0])
		}
		if feed[0].Payload[reminder.PayloadTaskID] != "task-1" || feed[0].Category != reminder.CategoryTaskReminder {
			t.Fatalf("expected payload and category to round-trip, got %+v", feed[0])
		}

		limited, err := store.ListNotifications(ctx, "user-a", 2)
		if err != nil {
			t.Fatalf("ListNotifications with limit failed: %v", err)
		}
		if len(limited) != 2 || limited[0].Title != "third" {
			t.Fatalf("expected two newest notifications, got %+v", limited)
		}

		empty, err := store.ListNotifications(ctx, "user-c", 10)
		if err != nil {
			t.Fatalf("ListNotifications for empty feed failed: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected empty feed, got %d", len(empty))
		}
	})
}

func only(t *testing.T, store persistence.Store, taskID string) reminder.Record {
	t.Helper()
	recs, err := store.QueryByField(context.Background(), persistence.FieldTaskID, taskID)
	if err != nil {
		t.Fatalf("QueryByField failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly one record for %s, got %d", taskID, len(recs))
	}
	return recs[0]
}
