package persistence

import (
	"context"

	"github.com/example/club-reminders/internal/reminder"
)

// ReminderStore persists reminder records. It is the only contract the
// scheduling, sweeping, and cleanup services depend on.
type ReminderStore interface {
	// Insert stores rec and returns the id assigned by the backend.
	Insert(ctx context.Context, rec reminder.Record) (string, error)
	// QueryByField returns every record whose field equals value.
	QueryByField(ctx context.Context, field Field, value any) ([]reminder.Record, error)
	// UpdateFields applies patch to the record with the given id.
	UpdateFields(ctx context.Context, id string, patch Patch) error
	// Delete removes the record with the given id.
	Delete(ctx context.Context, id string) error
}

// NotificationFeed is the per-recipient in-app notification list.
type NotificationFeed interface {
	AppendNotification(ctx context.Context, recipientID string, n reminder.Notification) (string, error)
	// ListNotifications returns the newest notifications first. A limit of
	// zero or less returns the whole feed.
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]StoredNotification, error)
}

// Store is what every backend provides.
type Store interface {
	ReminderStore
	NotificationFeed
	Close() error
}
