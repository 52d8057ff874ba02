package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultJanitorSpec sweeps stale persisted alarms every 15 minutes.
	DefaultJanitorSpec = "@every 15m"
	// DefaultGrace is how long a persisted alarm may outlive its fire time.
	DefaultGrace = time.Hour
)

// Janitor periodically removes persisted alarms whose fire time is long
// past. Such rows only exist when a fire could not delete its own copy.
type Janitor struct {
	store  Store
	spec   string
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJanitor builds a janitor. An invalid spec falls back to DefaultJanitorSpec
// when Start is called.
func NewJanitor(store Store, spec string, grace time.Duration, now func() time.Time, logger *slog.Logger) *Janitor {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:  store,
		spec:   spec,
		grace:  grace,
		now:    now,
		logger: logger.With("component", "AlarmJanitor"),
	}
}

// Start registers the sweep and starts the cron runner. It stops when ctx
// is cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	if j == nil || j.store == nil {
		return fmt.Errorf("alarm janitor has no store")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}

	c := cron.New()
	job := func() {
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.ErrorContext(ctx, "failed to sweep stale alarms", "error", err)
		}
	}
	if _, err := c.AddFunc(j.spec, job); err != nil {
		j.logger.WarnContext(ctx, "invalid janitor schedule, using default",
			"spec", j.spec,
			"default", DefaultJanitorSpec,
			"error", err,
		)
		if _, err := c.AddFunc(DefaultJanitorSpec, job); err != nil {
			return fmt.Errorf("register janitor job: %w", err)
		}
	}
	c.Start()
	j.cron = c
	j.logger.InfoContext(ctx, "alarm janitor started", "spec", j.spec, "grace", j.grace)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// Stop halts the cron runner and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j == nil {
		return
	}
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	j.logger.Info("alarm janitor stopped")
}

// RunOnce deletes persisted alarms whose fire time is older than the grace
// window and returns how many rows were removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if j == nil || j.store == nil {
		return 0, fmt.Errorf("alarm janitor has no store")
	}
	cutoff := j.now().Add(-j.grace)
	removed, err := j.store.DeleteDueBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete alarms due before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if removed > 0 {
		j.logger.InfoContext(ctx, "stale alarms removed", "count", removed, "cutoff", cutoff)
	}
	return removed, nil
}
