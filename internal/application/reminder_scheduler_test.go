package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/club-reminders/internal/reminder"
)

func TestReminderScheduler_OffsetCoverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dueIn   time.Duration
		offsets []reminder.OffsetKind
	}{
		{"due in 48 hours keeps every offset", 48 * time.Hour, []reminder.OffsetKind{reminder.OffsetOneDay, reminder.OffsetTenHours, reminder.OffsetFiveHours, reminder.OffsetTwoHours}},
		{"due in 12 hours drops one day", 12 * time.Hour, []reminder.OffsetKind{reminder.OffsetTenHours, reminder.OffsetFiveHours, reminder.OffsetTwoHours}},
		{"due in 3 hours keeps two hours", 3 * time.Hour, []reminder.OffsetKind{reminder.OffsetTwoHours}},
		{"due in exactly 2 hours fires now and is skipped", 2 * time.Hour, nil},
		{"due in 1 hour schedules nothing", time.Hour, nil},
		{"already overdue schedules nothing", -time.Hour, nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newStoreStub()
			clock := newTestClock(baseTime)
			svc := NewReminderSchedulerWithLogger(store, clock.Now, discardLogger())

			due := baseTime.Add(tt.dueIn)
			res, err := svc.Schedule(context.Background(), dueTask("task-1", due), []string{"user-a"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res.Created != len(tt.offsets) {
				t.Fatalf("expected %d records, got %d", len(tt.offsets), res.Created)
			}

			records := allRecords(t, store)
			got := make(map[reminder.OffsetKind]reminder.Record, len(records))
			for _, rec := range records {
				got[rec.OffsetKind] = rec
			}
			for _, kind := range tt.offsets {
				rec, ok := got[kind]
				if !ok {
					t.Fatalf("expected a %s record", kind)
				}
				lead, _ := kind.Lead()
				if !rec.FireAt.Equal(due.Add(-lead)) {
					t.Fatalf("expected %s to fire at %s, got %s", kind, due.Add(-lead), rec.FireAt)
				}
				if rec.Delivered || rec.DeliveredAt != nil || rec.RetryCount != 0 {
					t.Fatalf("expected fresh record, got %+v", rec)
				}
			}
		})
	}
}

func TestReminderScheduler_FanOut(t *testing.T) {
	t.Parallel()

	store := newStoreStub()
	svc := NewReminderSchedulerWithLogger(store, newTestClock(baseTime).Now, discardLogger())

	assignees := []string{"user-a", "user-b", "user-c"}
	// 6 hours out: fiveHours and twoHours survive.
	res, err := svc.Schedule(context.Background(), dueTask("task-1", baseTime.Add(6*time.Hour)), assignees)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Created != 6 {
		t.Fatalf("expected 6 records, got %d", res.Created)
	}

	pairs := make(map[string]int)
	for _, rec := range allRecords(t, store) {
		pairs[rec.RecipientID+"|"+string(rec.OffsetKind)]++
		if rec.TaskID != "task-1" {
			t.Fatalf("expected task id task-1, got %q", rec.TaskID)
		}
	}
	for _, a := range assignees {
		for _, kind := range []reminder.OffsetKind{reminder.OffsetFiveHours, reminder.OffsetTwoHours} {
			if pairs[a+"|"+string(kind)] != 1 {
				t.Fatalf("expected exactly one %s record for %s, got %d", kind, a, pairs[a+"|"+string(kind)])
			}
		}
	}
}

func TestReminderScheduler_Snapshot(t *testing.T) {
	t.Parallel()

	store := newStoreStub()
	svc := NewReminderSchedulerWithLogger(store, newTestClock(baseTime).Now, discardLogger())

	task := dueTask("task-1", baseTime.Add(3*time.Hour))
	task.Title = "  Submit design draft "
	if _, err := svc.Schedule(context.Background(), task, []string{"user-a"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	task.Title = "Renamed later"
	records := allRecords(t, store)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	snap := records[0].Snapshot
	if snap.Title != "Submit design draft" || snap.MeetingLabel != "Weekly sync" || !snap.DueAt.Equal(baseTime.Add(3*time.Hour)) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestReminderScheduler_NoOps(t *testing.T) {
	t.Parallel()

	t.Run("missing due date", func(t *testing.T) {
		t.Parallel()
		store := newStoreStub()
		svc := NewReminderSchedulerWithLogger(store, newTestClock(baseTime).Now, discardLogger())

		res, err := svc.Schedule(context.Background(), reminder.Task{ID: "task-1", Title: "x"}, []string{"user-a"})
		if err != nil || res.Created != 0 {
			t.Fatalf("expected silent no-op, got %+v, %v", res, err)
		}
		if store.inserts != 0 {
			t.Fatalf("expected no inserts, got %d", store.inserts)
		}
	})

	t.Run("no assignees", func(t *testing.T) {
		t.Parallel()
		store := newStoreStub()
		svc := NewReminderSchedulerWithLogger(store, newTestClock(baseTime).Now, discardLogger())

		res, err := svc.Schedule(context.Background(), dueTask("task-1", baseTime.Add(48*time.Hour)), []string{" ", ""})
		if err != nil || res.Created != 0 {
			t.Fatalf("expected silent no-op, got %+v, %v", res, err)
		}
	})
}

func TestReminderScheduler_Validation(t *testing.T) {
	t.Parallel()

	svc := NewReminderSchedulerWithLogger(newStoreStub(), newTestClock(baseTime).Now, discardLogger())

	_, err := svc.Schedule(context.Background(), reminder.Task{DueDate: "04/03/2024"}, []string{"user-a"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["task_id"]; !ok {
		t.Fatalf("expected task_id field error, got %+v", vErr.FieldErrors)
	}
	if _, ok := vErr.FieldErrors["due"]; !ok {
		t.Fatalf("expected due field error, got %+v", vErr.FieldErrors)
	}
}

func TestReminderScheduler_CalendarDueDate(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*60*60)
	store := newStoreStub()
	svc := NewReminderSchedulerWithLogger(store, newTestClock(baseTime).Now, discardLogger()).WithLocation(tokyo)

	// 2024-03-05 23:59 JST is 2024-03-05 14:59 UTC, 29h59m after baseTime.
	task := reminder.Task{ID: "task-1", Title: "t", MeetingLabel: "m", DueDate: "2024-03-05"}
	res, err := svc.Schedule(context.Background(), task, []string{"user-a"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Created != 4 {
		t.Fatalf("expected 4 records, got %d", res.Created)
	}
	want := time.Date(2024, 3, 5, 14, 59, 0, 0, time.UTC)
	for _, rec := range allRecords(t, store) {
		if !rec.Snapshot.DueAt.Equal(want) {
			t.Fatalf("expected due %s, got %s", want, rec.Snapshot.DueAt)
		}
	}
}

func TestReminderScheduler_Rescheduling(t *testing.T) {
	t.Parallel()

	store := newStoreStub()
	clock := newTestClock(baseTime)
	svc := NewReminderSchedulerWithLogger(store, clock.Now, discardLogger())
	task := dueTask("task-1", baseTime.Add(48*time.Hour))

	if _, err := svc.Schedule(context.Background(), task, []string{"user-a", "user-a", "user-b"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := len(allRecords(t, store)); got != 8 {
		t.Fatalf("expected duplicate assignees to collapse to 8 records, got %d", got)
	}

	res, err := svc.Schedule(context.Background(), task, []string{"user-a", "user-b"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Created != 0 || res.Skipped != 8 {
		t.Fatalf("expected identical call to skip everything, got %+v", res)
	}

	moved := dueTask("task-1", baseTime.Add(49*time.Hour))
	res, err = svc.Schedule(context.Background(), moved, []string{"user-a", "user-b"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Created != 8 {
		t.Fatalf("expected a moved due time to create fresh records, got %+v", res)
	}
	if got := len(allRecords(t, store)); got != 16 {
		t.Fatalf("expected earlier records to be kept, got %d records", got)
	}
}

func TestReminderScheduler_PartialFailure(t *testing.T) {
	t.Parallel()

	store := newStoreStub()
	store.insertErrAt = map[int]error{2: errBoom, 5: errBoom}
	svc := NewReminderSchedulerWithLogger(store, newTestClock(baseTime).Now, discardLogger())

	res, err := svc.Schedule(context.Background(), dueTask("task-1", baseTime.Add(48*time.Hour)), []string{"user-a", "user-b"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected joined insert errors, got %v", err)
	}
	if res.Created != 6 {
		t.Fatalf("expected remaining inserts to proceed, got %d created", res.Created)
	}
	if got := len(allRecords(t, store)); got != 6 {
		t.Fatalf("expected 6 persisted records, got %d", got)
	}
}

func TestReminderScheduler_QueryFailure(t *testing.T) {
	t.Parallel()

	store := newStoreStub()
	store.queryErr = errBoom
	svc := NewReminderSchedulerWithLogger(store, newTestClock(baseTime).Now, discardLogger())

	_, err := svc.Schedule(context.Background(), dueTask("task-1", baseTime.Add(48*time.Hour)), []string{"user-a"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected query error, got %v", err)
	}
	if store.inserts != 0 {
		t.Fatalf("expected no inserts after failed lookup, got %d", store.inserts)
	}
}

func TestReminderScheduler_Nil(t *testing.T) {
	t.Parallel()

	var svc *ReminderScheduler
	if _, err := svc.Schedule(context.Background(), reminder.Task{}, nil); err == nil {
		t.Fatalf("expected error for nil scheduler")
	}
}
