// Package delivery turns rendered notifications into entries in a
// recipient's feed, with an optional best-effort local alert on the side.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

// Sink appends one delivered notification for a recipient.
type Sink interface {
	Deliver(ctx context.Context, recipientID string, n reminder.Notification) error
}

// Alerter raises a local alert. Implementations may drop alerts freely.
type Alerter interface {
	Alert(ctx context.Context, recipientID string, n reminder.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, recipientID string, n reminder.Notification) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, recipientID string, n reminder.Notification) error {
	return f(ctx, recipientID, n)
}

// FeedSink delivers into a persistence.NotificationFeed.
type FeedSink struct {
	feed persistence.NotificationFeed
}

// NewFeedSink wraps feed as a Sink.
func NewFeedSink(feed persistence.NotificationFeed) *FeedSink {
	return &FeedSink{feed: feed}
}

// Deliver appends n to the recipient's feed.
func (s *FeedSink) Deliver(ctx context.Context, recipientID string, n reminder.Notification) error {
	if _, err := s.feed.AppendNotification(ctx, recipientID, n); err != nil {
		return fmt.Errorf("delivery: append notification: %w", err)
	}
	return nil
}

// Dispatcher stamps the creation time, delivers through the sink, and then
// raises a local alert. Only the sink outcome is reported to the caller.
type Dispatcher struct {
	sink    Sink
	alerter Alerter
	now     func() time.Time
	logger  *slog.Logger
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAlerter enables local alerts.
func WithAlerter(alerter Alerter) DispatcherOption {
	return func(d *Dispatcher) {
		d.alerter = alerter
	}
}

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the logger used for swallowed alert failures.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a Dispatcher around sink.
func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:   sink,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver implements Sink.
func (d *Dispatcher) Deliver(ctx context.Context, recipientID string, n reminder.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	if err := d.sink.Deliver(ctx, recipientID, n); err != nil {
		return err
	}

	if d.alerter != nil {
		if err := d.alerter.Alert(ctx, recipientID, n); err != nil {
			d.logger.DebugContext(ctx, "local alert failed",
				"recipient_id", recipientID,
				"error", err,
			)
		}
	}
	return nil
}

// DedupeKey identifies repeats of the same alert for the same recipient.
func DedupeKey(recipientID string, n reminder.Notification) string {
	return recipientID + "|" + string(n.Category) + "|" + n.LinkTarget + "|" + n.Title
}
