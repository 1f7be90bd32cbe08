// Package metrics records reminder pipeline counters.
package metrics

import "time"

// Assignment notification outcomes.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)

// Recorder is implemented by every metrics backend.
type Recorder interface {
	RemindersScheduled(n int)
	ReminderDelivered()
	ReminderDeliveryFailed()
	ReminderDeadLettered()
	RemindersCleaned(n int)
	AssignmentNotification(result string)
	SweepDuration(d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RemindersScheduled(int)        {}
func (Nop) ReminderDelivered()            {}
func (Nop) ReminderDeliveryFailed()       {}
func (Nop) ReminderDeadLettered()         {}
func (Nop) RemindersCleaned(int)          {}
func (Nop) AssignmentNotification(string) {}
func (Nop) SweepDuration(time.Duration)   {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
