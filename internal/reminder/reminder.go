// Package reminder holds the task reminder domain: lead-time buckets, the
// persisted reminder record, and the notification copy rendered from it.
package reminder

import (
	"fmt"
	"time"
)

// OffsetKind identifies the lead-time bucket a reminder represents.
type OffsetKind string

const (
	OffsetOneDay    OffsetKind = "oneDay"
	OffsetTenHours  OffsetKind = "tenHours"
	OffsetFiveHours OffsetKind = "fiveHours"
	OffsetTwoHours  OffsetKind = "twoHours"
)

// LeadTime pairs an offset with how long before the due time it fires.
type LeadTime struct {
	Kind   OffsetKind
	Before time.Duration
}

var leadTimes = [...]LeadTime{
	{Kind: OffsetOneDay, Before: 24 * time.Hour},
	{Kind: OffsetTenHours, Before: 10 * time.Hour},
	{Kind: OffsetFiveHours, Before: 5 * time.Hour},
	{Kind: OffsetTwoHours, Before: 2 * time.Hour},
}

// LeadTimes returns the ordered lead-time table, longest lead first.
func LeadTimes() []LeadTime {
	out := make([]LeadTime, len(leadTimes))
	copy(out, leadTimes[:])
	return out
}

// Lead reports the duration before the due time at which the offset fires.
func (k OffsetKind) Lead() (time.Duration, bool) {
	for _, lt := range leadTimes {
		if lt.Kind == k {
			return lt.Before, true
		}
	}
	return 0, false
}

// Valid reports whether k is one of the known offsets.
func (k OffsetKind) Valid() bool {
	_, ok := k.Lead()
	return ok
}

// ParseOffsetKind converts a stored value back into an OffsetKind.
func ParseOffsetKind(value string) (OffsetKind, error) {
	kind := OffsetKind(value)
	if !kind.Valid() {
		return "", fmt.Errorf("reminder: unknown offset kind %q", value)
	}
	return kind, nil
}

// Snapshot is the copy of task fields captured when a reminder is scheduled.
// Later edits to the task never reach an already persisted snapshot.
type Snapshot struct {
	Title        string
	MeetingLabel string
	DueAt        time.Time
}

// Record is one pending or sent reminder for a single recipient and offset.
type Record struct {
	ID          string
	TaskID      string
	RecipientID string
	OffsetKind  OffsetKind
	FireAt      time.Time
	Snapshot    Snapshot
	Delivered   bool
	DeliveredAt *time.Time
	RetryCount  int
	LastError   string
}

// Due reports whether the record is undelivered and its fire time has arrived.
func (r Record) Due(now time.Time) bool {
	return !r.Delivered && !r.FireAt.After(now)
}

// DeliveredBefore reports whether the record was delivered strictly before cutoff.
func (r Record) DeliveredBefore(cutoff time.Time) bool {
	return r.Delivered && r.DeliveredAt != nil && r.DeliveredAt.Before(cutoff)
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	clone := r
	if r.DeliveredAt != nil {
		at := *r.DeliveredAt
		clone.DeliveredAt = &at
	}
	return clone
}

// Millis truncates t to epoch millisecond precision in UTC, the precision at
// which fire and delivery times are persisted.
func Millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}
