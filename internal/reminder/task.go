package reminder

import (
	"fmt"
	"strings"
	"time"
)

const (
	dueDateLayout   = "2006-01-02"
	dueTimeLayout   = "15:04"
	defaultDueClock = "23:59"
)

// Task carries the read-only task fields the scheduler needs. The due moment
// is either absolute (DueAt) or a calendar date with an optional wall clock.
type Task struct {
	ID           string
	Title        string
	MeetingLabel string
	DueAt        *time.Time
	DueDate      string
	DueTime      string
}

// ResolveDue returns the absolute due moment. ok is false when the task has
// no due date at all. A date without a time is due at the end of that day in loc.
func (t Task) ResolveDue(loc *time.Location) (due time.Time, ok bool, err error) {
	if t.DueAt != nil && !t.DueAt.IsZero() {
		return *t.DueAt, true, nil
	}

	date := strings.TrimSpace(t.DueDate)
	if date == "" {
		return time.Time{}, false, nil
	}
	clock := strings.TrimSpace(t.DueTime)
	if clock == "" {
		clock = defaultDueClock
	}
	if loc == nil {
		loc = time.UTC
	}

	due, err = time.ParseInLocation(dueDateLayout+" "+dueTimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reminder: parse due %q %q: %w", date, clock, err)
	}
	return due, true, nil
}

// SnapshotAt copies the display fields of the task for a resolved due moment.
func (t Task) SnapshotAt(due time.Time) Snapshot {
	return Snapshot{
		Title:        strings.TrimSpace(t.Title),
		MeetingLabel: strings.TrimSpace(t.MeetingLabel),
		DueAt:        Millis(due),
	}
}
