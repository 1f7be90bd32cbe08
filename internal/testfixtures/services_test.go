package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/club-reminders/internal/application"
	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

func TestServiceFactorySchedulesWithGeneratedIDs(t *testing.T) {
	factory := NewServiceFactory()
	store := factory.NewMemoryStore()
	task := NewTaskFixture(WithTaskAssignees("a", "b"))

	res, err := factory.NewReminderScheduler(store).Schedule(context.Background(), task.Task(), task.Assignees)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if res.Created != 8 {
		t.Fatalf("expected 8 reminders, got %d", res.Created)
	}

	records, err := store.QueryByField(context.Background(), persistence.FieldTaskID, task.ID)
	if err != nil {
		t.Fatalf("QueryByField returned error: %v", err)
	}
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.ID] = true
	}
	for i := 1; i <= 8; i++ {
		id := fmt.Sprintf("id-%d", i)
		if !seen[id] {
			t.Fatalf("expected generated ID %s among %v", id, seen)
		}
	}
}

func TestServiceFactorySweepsWithRecordingSink(t *testing.T) {
	factory := NewServiceFactory()
	store := factory.NewMemoryStore()
	sink := NewRecordingSink()
	sink.FailFor("member-broken", errors.New("offline"))

	ok := NewReminderFixture(WithReminderRecipient("member-ok"))
	broken := NewReminderFixture(WithReminderRecipient("member-broken"))
	for _, f := range []ReminderFixture{ok, broken} {
		if _, err := store.Insert(context.Background(), f.Record()); err != nil {
			t.Fatalf("Insert returned error: %v", err)
		}
	}

	res, err := factory.NewReminderSweeper(store, sink, application.DefaultPolicy()).ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue returned error: %v", err)
	}
	if res.Delivered != 1 || res.Failed != 1 {
		t.Fatalf("expected 1 delivered and 1 failed, got %+v", res)
	}

	delivered := sink.Delivered()
	if len(delivered) != 1 || delivered[0].RecipientID != "member-ok" {
		t.Fatalf("expected one delivery to member-ok, got %+v", delivered)
	}
	if delivered[0].Notification.Category != reminder.CategoryTaskReminder {
		t.Fatalf("expected task reminder category, got %q", delivered[0].Notification.Category)
	}
}

func TestSQLiteHarnessRoundTrip(t *testing.T) {
	harness := NewSQLiteHarness(t)
	fixture := NewReminderFixture(WithReminderDelivered(ReferenceTime().Add(-time.Hour)))

	id, err := harness.Store.Insert(context.Background(), fixture.Record())
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	records, err := harness.Store.QueryByField(context.Background(), persistence.FieldDelivered, true)
	if err != nil {
		t.Fatalf("QueryByField returned error: %v", err)
	}
	if len(records) != 1 || records[0].ID != id {
		t.Fatalf("expected stored record %s, got %+v", id, records)
	}
	if records[0].DeliveredAt == nil || !records[0].DeliveredAt.Equal(*fixture.DeliveredAt) {
		t.Fatalf("expected deliveredAt %v, got %v", fixture.DeliveredAt, records[0].DeliveredAt)
	}
}
