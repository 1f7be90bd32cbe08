package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

func TestRetentionJanitor_Cleanup(t *testing.T) {
	t.Parallel()

	store := newStoreStub()
	clock := newTestClock(baseTime)
	ctx := context.Background()
	retention := 7 * 24 * time.Hour

	markDelivered := func(rec reminder.Record, at time.Time) {
		t.Helper()
		if err := store.UpdateFields(ctx, rec.ID, persistence.MarkDelivered(at)); err != nil {
			t.Fatalf("mark delivered failed: %v", err)
		}
	}

	stale := insertRecord(t, store, reminder.Record{RecipientID: "stale", FireAt: baseTime.Add(-10 * 24 * time.Hour)})
	markDelivered(stale, baseTime.Add(-8*24*time.Hour))
	fresh := insertRecord(t, store, reminder.Record{RecipientID: "fresh", FireAt: baseTime.Add(-3 * 24 * time.Hour)})
	markDelivered(fresh, baseTime.Add(-2*24*time.Hour))
	boundary := insertRecord(t, store, reminder.Record{RecipientID: "boundary", FireAt: baseTime.Add(-8 * 24 * time.Hour)})
	markDelivered(boundary, baseTime.Add(-retention))
	pending := insertRecord(t, store, reminder.Record{RecipientID: "pending", FireAt: baseTime.Add(-30 * 24 * time.Hour)})

	janitor := NewRetentionJanitorWithLogger(store, clock.Now, discardLogger())
	deleted, err := janitor.Cleanup(ctx, retention)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one deletion, got %d", deleted)
	}

	remaining := make(map[string]bool)
	for _, rec := range allRecords(t, store) {
		remaining[rec.ID] = true
	}
	if remaining[stale.ID] {
		t.Fatalf("expected stale delivered record to be removed")
	}
	for _, rec := range []reminder.Record{fresh, boundary, pending} {
		if !remaining[rec.ID] {
			t.Fatalf("expected %s to be kept", rec.RecipientID)
		}
	}

	// Undelivered records survive any amount of time.
	clock.Advance(365 * 24 * time.Hour)
	if _, err := janitor.Cleanup(ctx, retention); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	records := allRecords(t, store)
	if len(records) != 1 || records[0].ID != pending.ID {
		t.Fatalf("expected only the undelivered record to remain, got %+v", records)
	}
}

func TestRetentionJanitor_Errors(t *testing.T) {
	t.Parallel()

	t.Run("negative retention", func(t *testing.T) {
		t.Parallel()
		janitor := NewRetentionJanitorWithLogger(newStoreStub(), newTestClock(baseTime).Now, discardLogger())
		_, err := janitor.Cleanup(context.Background(), -time.Hour)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("query failure", func(t *testing.T) {
		t.Parallel()
		store := newStoreStub()
		store.queryErr = errBoom
		janitor := NewRetentionJanitorWithLogger(store, newTestClock(baseTime).Now, discardLogger())
		if _, err := janitor.Cleanup(context.Background(), time.Hour); !errors.Is(err, errBoom) {
			t.Fatalf("expected query error, got %v", err)
		}
	})

	t.Run("delete failure continues", func(t *testing.T) {
		t.Parallel()
		store := newStoreStub()
		ctx := context.Background()
		for i := 0; i < 2; i++ {
			rec := insertRecord(t, store, reminder.Record{FireAt: baseTime.Add(-48 * time.Hour)})
			if err := store.UpdateFields(ctx, rec.ID, persistence.MarkDelivered(baseTime.Add(-48*time.Hour))); err != nil {
				t.Fatalf("mark delivered failed: %v", err)
			}
		}
		store.deleteErr = errBoom

		janitor := NewRetentionJanitorWithLogger(store, newTestClock(baseTime).Now, discardLogger())
		deleted, err := janitor.Cleanup(ctx, time.Hour)
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected delete error, got %v", err)
		}
		if deleted != 0 || store.deletes != 2 {
			t.Fatalf("expected both deletes attempted, got deleted=%d attempts=%d", deleted, store.deletes)
		}
	})
}
