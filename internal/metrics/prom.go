package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder with client_golang collectors.
type Prometheus struct {
	scheduled     prometheus.Counter
	delivered     prometheus.Counter
	failed        prometheus.Counter
	deadLettered  prometheus.Counter
	cleaned       prometheus.Counter
	assignments   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_scheduled_total",
			Help: "Number of reminder records created",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_delivered_total",
			Help: "Number of reminders delivered to a recipient feed",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_delivery_failed_total",
			Help: "Number of failed reminder delivery attempts",
		}),
		deadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_dead_lettered_total",
			Help: "Number of reminders dropped after exhausting retries",
		}),
		cleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_cleaned_total",
			Help: "Number of delivered reminders removed by retention cleanup",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_assignment_notifications_total",
			Help: "Number of immediate assignment notifications by result",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminders_sweep_duration_seconds",
			Help:    "Duration of due-reminder sweeps",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.scheduled, m.delivered, m.failed, m.deadLettered, m.cleaned, m.assignments, m.sweepDuration)
	return m
}

func (m *Prometheus) RemindersScheduled(n int) {
	m.scheduled.Add(float64(n))
}

func (m *Prometheus) ReminderDelivered() {
	m.delivered.Inc()
}

func (m *Prometheus) ReminderDeliveryFailed() {
	m.failed.Inc()
}

func (m *Prometheus) ReminderDeadLettered() {
	m.deadLettered.Inc()
}

func (m *Prometheus) RemindersCleaned(n int) {
	m.cleaned.Add(float64(n))
}

func (m *Prometheus) AssignmentNotification(result string) {
	m.assignments.WithLabelValues(result).Inc()
}

func (m *Prometheus) SweepDuration(d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
}

var _ Recorder = (*Prometheus)(nil)
