package application

import (
	"context"
	"time"

	"github.com/example/club-reminders/internal/reminder"
)

// ScheduleResult reports how many reminder records a Schedule call wrote.
// Skipped counts records that already existed for the same recipient,
// offset and fire time.
type ScheduleResult struct {
	Created int
	Skipped int
}

// SweepResult summarises one ProcessDue run. Each due record lands in
// exactly one bucket.
type SweepResult struct {
	Delivered    int
	Failed       int
	DeadLettered int
}

// Policy controls retries and fan-out of the sweeper.
type Policy struct {
	MaxRetries   int
	RetryBackoff time.Duration
	Concurrency  int
}

// DefaultPolicy returns three attempts, a 30 minute backoff, and four
// concurrent deliveries per sweep.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		RetryBackoff: 30 * time.Minute,
		Concurrency:  4,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = def.RetryBackoff
	}
	if p.Concurrency <= 0 {
		p.Concurrency = def.Concurrency
	}
	return p
}

// DeadLetterObserver is told about every record dropped after its final
// failed attempt. rec carries the final retry count and error.
type DeadLetterObserver interface {
	DeadLettered(ctx context.Context, rec reminder.Record)
}

// DeadLetterFunc adapts a function to DeadLetterObserver.
type DeadLetterFunc func(ctx context.Context, rec reminder.Record)

// DeadLettered calls f.
func (f DeadLetterFunc) DeadLettered(ctx context.Context, rec reminder.Record) {
	f(ctx, rec)
}
