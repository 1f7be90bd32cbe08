package reminder

import (
	"fmt"
	"time"
)

// Category lets feed consumers filter notifications by producer.
type Category string

const (
	CategoryTaskReminder   Category = "task_reminder"
	CategoryTaskAssignment Category = "task_assignment"
)

// Payload keys carried for client-side deep-linking.
const (
	PayloadTaskID     = "taskId"
	PayloadDueAt      = "dueAt"
	PayloadOffsetKind = "offsetKind"
)

// Notification is a rendered, human-readable message for one recipient feed.
// It is producer agnostic: anything that can fill these fields can be delivered.
type Notification struct {
	Title      string
	Message    string
	Category   Category
	LinkTarget string
	Payload    map[string]string
	CreatedAt  time.Time
}

// Clone returns a copy that does not share the payload map.
func (n Notification) Clone() Notification {
	clone := n
	if n.Payload != nil {
		clone.Payload = make(map[string]string, len(n.Payload))
		for k, v := range n.Payload {
			clone.Payload[k] = v
		}
	}
	return clone
}

type reminderCopy struct {
	title  string
	format string
}

var reminderCopies = map[OffsetKind]reminderCopy{
	OffsetOneDay:    {title: "Task Due Tomorrow", format: "Task \"%s\" from %s is due tomorrow!"},
	OffsetTenHours:  {title: "Task Due in 10 Hours", format: "Task \"%s\" from %s is due in 10 hours."},
	OffsetFiveHours: {title: "Task Due in 5 Hours", format: "Task \"%s\" from %s is due in 5 hours!"},
	OffsetTwoHours:  {title: "Task Due Soon!", format: "Task \"%s\" from %s is due in 2 hours!"},
}

// TaskLink is the in-portal link target for a task.
func TaskLink(taskID string) string {
	return "/tasks/" + taskID
}

// RenderReminder builds the reminder notification for a record from its
// snapshot, never from live task data.
func RenderReminder(rec Record) (Notification, error) {
	c, ok := reminderCopies[rec.OffsetKind]
	if !ok {
		return Notification{}, fmt.Errorf("reminder: no copy for offset kind %q", rec.OffsetKind)
	}
	return Notification{
		Title:      c.title,
		Message:    fmt.Sprintf(c.format, rec.Snapshot.Title, rec.Snapshot.MeetingLabel),
		Category:   CategoryTaskReminder,
		LinkTarget: TaskLink(rec.TaskID),
		Payload: map[string]string{
			PayloadTaskID:     rec.TaskID,
			PayloadDueAt:      rec.Snapshot.DueAt.UTC().Format(time.RFC3339),
			PayloadOffsetKind: string(rec.OffsetKind),
		},
	}, nil
}

// RenderAssignment builds the one-shot "you were assigned" notification.
// due may be zero when the task has no due date.
func RenderAssignment(task Task, due time.Time) Notification {
	payload := map[string]string{PayloadTaskID: task.ID}
	if !due.IsZero() {
		payload[PayloadDueAt] = due.UTC().Format(time.RFC3339)
	}
	return Notification{
		Title:      "New Task Assigned",
		Message:    fmt.Sprintf("New Task Assigned: %s for %s", task.Title, task.MeetingLabel),
		Category:   CategoryTaskAssignment,
		LinkTarget: TaskLink(task.ID),
		Payload:    payload,
	}
}
