package reminder

import (
	"testing"
	"time"
)

func TestResolveDuePrefersAbsolute(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	task := Task{DueAt: &due, DueDate: "2030-01-01", DueTime: "08:00"}

	got, ok, err := task.ResolveDue(time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || !got.Equal(due) {
		t.Fatalf("expected %s, got %s (ok=%v)", due, got, ok)
	}
}

func TestResolveDueFromDateAndTime(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("JST", 9*3600)
	task := Task{DueDate: "2024-05-10", DueTime: "18:30"}

	got, ok, err := task.ResolveDue(loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 10, 18, 30, 0, 0, loc)
	if !ok || !got.Equal(want) {
		t.Fatalf("expected %s, got %s (ok=%v)", want, got, ok)
	}
}

func TestResolveDueDefaultsToEndOfDay(t *testing.T) {
	t.Parallel()

	got, ok, err := Task{DueDate: "2024-05-10"}.ResolveDue(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 10, 23, 59, 0, 0, time.UTC)
	if !ok || !got.Equal(want) {
		t.Fatalf("expected %s, got %s (ok=%v)", want, got, ok)
	}
}

func TestResolveDueWithoutDate(t *testing.T) {
	t.Parallel()

	_, ok, err := Task{DueTime: "10:00"}.ResolveDue(time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no due moment for task without date")
	}
}

func TestResolveDueRejectsMalformedDate(t *testing.T) {
	t.Parallel()

	for _, task := range []Task{
		{DueDate: "10/05/2024"},
		{DueDate: "2024-05-10", DueTime: "25:00"},
	} {
		if _, _, err := task.ResolveDue(time.UTC); err == nil {
			t.Fatalf("expected error for %+v", task)
		}
	}
}

func TestSnapshotAtTrimsAndTruncates(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 5, 10, 15, 0, 0, 999999, time.UTC)
	snap := Task{Title: "  Draft ", MeetingLabel: " Weekly Sync "}.SnapshotAt(due)

	if snap.Title != "Draft" || snap.MeetingLabel != "Weekly Sync" {
		t.Fatalf("expected trimmed snapshot, got %+v", snap)
	}
	if snap.DueAt.Nanosecond() != 0 {
		t.Fatalf("expected millisecond precision, got %d ns", snap.DueAt.Nanosecond())
	}
}
