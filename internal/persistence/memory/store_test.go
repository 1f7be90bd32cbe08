package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/persistence/memory"
	"github.com/example/club-reminders/internal/persistence/persistencetest"
	"github.com/example/club-reminders/internal/reminder"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return memory.New()
	})
}

func TestStoreUsesInjectedIDs(t *testing.T) {
	t.Parallel()

	ids := []string{"rem-1", "rem-1"}
	store := memory.New(memory.WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))

	rec := reminder.Record{
		TaskID:      "task-1",
		RecipientID: "user-a",
		OffsetKind:  reminder.OffsetOneDay,
		FireAt:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	id, err := store.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id != "rem-1" {
		t.Fatalf("expected rem-1, got %s", id)
	}
	if _, err := store.Insert(context.Background(), rec); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for id collision, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	id, err := store.Insert(ctx, reminder.Record{
		TaskID:      "task-1",
		RecipientID: "user-a",
		OffsetKind:  reminder.OffsetOneDay,
		FireAt:      at,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.UpdateFields(ctx, id, persistence.MarkDelivered(at)); err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}

	recs, err := store.QueryByField(ctx, persistence.FieldTaskID, "task-1")
	if err != nil {
		t.Fatalf("QueryByField failed: %v", err)
	}
	*recs[0].DeliveredAt = at.Add(time.Hour)

	again, err := store.QueryByField(ctx, persistence.FieldTaskID, "task-1")
	if err != nil {
		t.Fatalf("QueryByField failed: %v", err)
	}
	if !again[0].DeliveredAt.Equal(at) {
		t.Fatalf("expected stored DeliveredAt to be isolated, got %s", *again[0].DeliveredAt)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := memory.New().QueryByField(ctx, persistence.FieldDelivered, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
