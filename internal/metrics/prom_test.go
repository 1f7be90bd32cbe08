package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.RemindersScheduled(8)
	m.ReminderDelivered()
	m.ReminderDelivered()
	m.ReminderDeliveryFailed()
	m.ReminderDeadLettered()
	m.RemindersCleaned(3)
	m.AssignmentNotification(ResultDelivered)
	m.AssignmentNotification(ResultFailed)
	m.AssignmentNotification(ResultDelivered)
	m.SweepDuration(250 * time.Millisecond)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"scheduled", m.scheduled, 8},
		{"delivered", m.delivered, 2},
		{"failed", m.failed, 1},
		{"dead lettered", m.deadLettered, 1},
		{"cleaned", m.cleaned, 3},
		{"assignments delivered", m.assignments.WithLabelValues(ResultDelivered), 2},
		{"assignments failed", m.assignments.WithLabelValues(ResultFailed), 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}

	if n := testutil.CollectAndCount(m.sweepDuration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	if _, ok := OrNop(nil).(Nop); !ok {
		t.Fatalf("expected Nop for nil recorder")
	}
	m := NewPrometheus(prometheus.NewRegistry())
	if OrNop(m) != Recorder(m) {
		t.Fatalf("expected recorder to be returned unchanged")
	}
}
