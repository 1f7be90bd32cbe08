package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/club-reminders/internal/application"
	"github.com/example/club-reminders/internal/delivery"
	"github.com/example/club-reminders/internal/metrics"
	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/persistence/memory"
)

// ServiceFactory assists tests with constructing reminder services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
	Metrics     metrics.Recorder
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. Services log
// to io.Discard unless WithLogger is supplied.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     metrics.Nop{},
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	factory.Metrics = metrics.OrNop(factory.Metrics)
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger overrides the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		if logger != nil {
			factory.Logger = logger
		}
	}
}

// WithMetrics overrides the metrics recorder handed to every service.
func WithMetrics(recorder metrics.Recorder) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Metrics = recorder
	}
}

// NewMemoryStore returns an in-memory store whose IDs come from the
// factory's generator.
func (f *ServiceFactory) NewMemoryStore() *memory.Store {
	return memory.New(memory.WithIDGenerator(f.IDGenerator.NextFunc()))
}

// NewReminderScheduler builds a scheduler bound to the factory clock.
func (f *ServiceFactory) NewReminderScheduler(store persistence.ReminderStore) *application.ReminderScheduler {
	return application.NewReminderSchedulerWithLogger(store, f.Clock.NowFunc(), f.Logger).WithMetrics(f.Metrics)
}

// NewImmediateNotifier builds an assignment notifier bound to the factory clock.
func (f *ServiceFactory) NewImmediateNotifier(sink delivery.Sink) *application.ImmediateNotifier {
	return application.NewImmediateNotifierWithLogger(sink, f.Clock.NowFunc(), f.Logger).WithMetrics(f.Metrics)
}

// NewReminderSweeper builds a sweeper bound to the factory clock.
func (f *ServiceFactory) NewReminderSweeper(store persistence.ReminderStore, sink delivery.Sink, policy application.Policy) *application.ReminderSweeper {
	return application.NewReminderSweeperWithLogger(store, sink, policy, f.Clock.NowFunc(), f.Logger).WithMetrics(f.Metrics)
}

// NewRetentionJanitor builds a janitor bound to the factory clock.
func (f *ServiceFactory) NewRetentionJanitor(store persistence.ReminderStore) *application.RetentionJanitor {
	return application.NewRetentionJanitorWithLogger(store, f.Clock.NowFunc(), f.Logger).WithMetrics(f.Metrics)
}
