package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/campus-scheduler/internal/alarm"
	"github.com/example/campus-scheduler/internal/application"
	"github.com/example/campus-scheduler/internal/notify"
	"github.com/example/campus-scheduler/internal/period"
	"github.com/example/campus-scheduler/internal/persistence"
	"github.com/example/campus-scheduler/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
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

// TimetableServiceDeps captures dependencies for constructing a timetable service.
type TimetableServiceDeps struct {
	Slots  persistence.SlotRepository
	Rules  *period.Rules
	Logger *slog.Logger
}

// NewTimetableService builds a timetable service on the factory clock and ids.
func (f *ServiceFactory) NewTimetableService(deps TimetableServiceDeps) *application.TimetableService {
	rules := period.DefaultRules()
	if deps.Rules != nil {
		rules = *deps.Rules
	}
	clock, err := period.NewClock(rules)
	if err != nil {
		panic(err)
	}
	return application.NewTimetableServiceWithLogger(
		deps.Slots,
		clock,
		recurrence.NewEngine(Location()),
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// EventServiceDeps captures dependencies for constructing an event service.
// Alarms is optional; without it pending tasks are kept in memory only.
type EventServiceDeps struct {
	Events        persistence.EventRepository
	Notifications persistence.NotificationRepository
	Alarms        persistence.PendingAlarmRepository
	Logger        *slog.Logger
}

// NewEventService builds an event service wired to a real alarm scheduler
// on the factory clock. Fired alarms are written to deps.Notifications. The
// scheduler is returned so tests can dispatch due alarms.
func (f *ServiceFactory) NewEventService(deps EventServiceDeps) (*application.EventService, *alarm.Scheduler) {
	now := f.Clock.NowFunc()
	opts := alarm.Options{
		Now:         now,
		IDGenerator: NewIDGenerator("alarm").NextFunc(),
		Logger:      deps.Logger,
	}
	if deps.Alarms != nil {
		opts.Store = notify.NewPendingStore(deps.Alarms, now)
	}
	scheduler := alarm.New(notify.NewInboxSink(deps.Notifications, NewIDGenerator("notification").NextFunc(), now), opts)

	svc := application.NewEventServiceWithLogger(
		deps.Events,
		deps.Notifications,
		scheduler,
		application.Calendar{Location: Location()},
		f.IDGenerator.NextFunc(),
		now,
		deps.Logger,
	)
	return svc, scheduler
}
