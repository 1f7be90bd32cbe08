// Package memory provides an in-process persistence.Store used by tests and
// single-node deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

type storedNotification struct {
	seq int
	persistence.StoredNotification
}

// Store keeps reminders and notification feeds in maps guarded by a RWMutex.
type Store struct {
	mu            sync.RWMutex
	newID         func() string
	reminders     map[string]reminder.Record
	notifications map[string][]storedNotification
	seq           int
}

// Option customises a Store.
type Option func(*Store)

// WithIDGenerator overrides the default UUID id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		newID:         uuid.NewString,
		reminders:     make(map[string]reminder.Record),
		notifications: make(map[string][]storedNotification),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases resources held by the store. No-op for the in-memory implementation.
func (s *Store) Close() error {
	return nil
}

// Insert stores a new reminder record under a generated id.
func (s *Store) Insert(ctx context.Context, rec reminder.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := persistence.ValidateRecord(rec); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, ok := s.reminders[id]; ok {
		return "", fmt.Errorf("%w: reminder %s already exists", persistence.ErrConstraintViolation, id)
	}

	rec = normalize(rec)
	rec.ID = id
	s.reminders[id] = rec
	return id, nil
}

// QueryByField returns matching records ordered by fire time, then id.
func (s *Store) QueryByField(ctx context.Context, field persistence.Field, value any) ([]reminder.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, err := field.Normalize(value)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]reminder.Record, 0)
	for _, rec := range s.reminders {
		if field.Matches(rec, value) {
			out = append(out, rec.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out, nil
}

// UpdateFields applies the patch to an existing record.
func (s *Store) UpdateFields(ctx context.Context, id string, patch persistence.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.reminders[id]
	if !ok {
		return persistence.ErrNotFound
	}
	patch.Apply(&rec)
	s.reminders[id] = rec
	return nil
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reminders[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.reminders, id)
	return nil
}

// AppendNotification adds a notification to the recipient's feed.
func (s *Store) AppendNotification(ctx context.Context, recipientID string, n reminder.Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry := storedNotification{
		seq: s.seq,
		StoredNotification: persistence.StoredNotification{
			ID:           s.newID(),
			RecipientID:  recipientID,
			Notification: n.Clone(),
		},
	}
	entry.CreatedAt = reminder.Millis(n.CreatedAt)
	s.notifications[recipientID] = append(s.notifications[recipientID], entry)
	return entry.ID, nil
}

// ListNotifications returns the recipient's feed, newest first.
func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]persistence.StoredNotification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]storedNotification, len(s.notifications[recipientID]))
	copy(entries, s.notifications[recipientID])
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].seq > entries[j].seq
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]persistence.StoredNotification, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.StoredNotification.Clone())
	}
	return out, nil
}

func normalize(rec reminder.Record) reminder.Record {
	rec = rec.Clone()
	rec.FireAt = reminder.Millis(rec.FireAt)
	rec.Snapshot.DueAt = reminder.Millis(rec.Snapshot.DueAt)
	if rec.DeliveredAt != nil {
		at := reminder.Millis(*rec.DeliveredAt)
		rec.DeliveredAt = &at
	}
	return rec
}

var _ persistence.Store = (*Store)(nil)
