package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/campus-scheduler/internal/alarm"
	"github.com/example/campus-scheduler/internal/application"
	"github.com/example/campus-scheduler/internal/config"
	httptransport "github.com/example/campus-scheduler/internal/http"
	"github.com/example/campus-scheduler/internal/notify"
	"github.com/example/campus-scheduler/internal/period"
	"github.com/example/campus-scheduler/internal/persistence"
	"github.com/example/campus-scheduler/internal/persistence/memory"
	"github.com/example/campus-scheduler/internal/persistence/sqlite"
	"github.com/example/campus-scheduler/internal/recurrence"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "storage", cfg.Storage)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// storage is what the service needs from a backend.
type storage interface {
	persistence.SlotRepository
	persistence.EventRepository
	persistence.NotificationRepository
	persistence.PendingAlarmRepository
	Ping(ctx context.Context) error
	Close() error
}

// app holds the wired service graph.
type app struct {
	Handler http.Handler

	storage   storage
	alarms    *alarm.Scheduler
	janitor   *alarm.Janitor
	logger    *slog.Logger
	runDone   chan struct{}
	runCancel context.CancelFunc
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	clock, err := period.NewClock(cfg.Rules)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build period clock: %w", err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	engine := recurrence.NewEngine(loc)
	now := time.Now

	pending := notify.NewPendingStore(store, now)
	alarms := alarm.New(notify.NewInboxSink(store, uuid.NewString, now), alarm.Options{
		Store:       pending,
		Now:         now,
		IDGenerator: uuid.NewString,
		Logger:      logger,
		LinkBase:    cfg.EventLinkBase,
	})

	timetable := application.NewTimetableServiceWithLogger(store, clock, engine, uuid.NewString, now, logger)
	events := application.NewEventServiceWithLogger(
		store,
		store,
		alarms,
		application.Calendar{Location: loc, AllDayAnchor: cfg.AllDayAnchor},
		uuid.NewString,
		now,
		logger,
	)

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Timetable: httptransport.NewTimetableHandler(timetable, logger),
		Events:    httptransport.NewEventHandler(events, logger),
		Health:    store,
		Limiter:   limiter,
		Logger:    logger,
	})

	return &app{
		Handler: handler,
		storage: store,
		alarms:  alarms,
		janitor: alarm.NewJanitor(pending, cfg.JanitorSpec, cfg.AlarmGrace, now, logger),
		logger:  logger,
	}, nil
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage; state is lost on restart")
		return memory.New(), nil
	}

	store, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if cfg.MigrationsEnabled {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	return store, nil
}

// Start restores persisted alarms and launches the dispatcher and janitor.
// Both stop when ctx is cancelled.
func (a *app) Start(ctx context.Context) error {
	result, err := a.alarms.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover alarms: %w", err)
	}
	a.logger.Info("alarms recovered", "restored", result.Restored, "dropped", result.Dropped)

	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runDone = make(chan struct{})
	go func() {
		defer close(a.runDone)
		if err := a.alarms.Run(runCtx); err != nil {
			a.logger.Error("alarm dispatcher failed", "error", err)
		}
	}()

	if err := a.janitor.Start(runCtx); err != nil {
		a.logger.Warn("alarm janitor disabled", "error", err)
	}
	return nil
}

// Close stops background work, waits for in-flight notification writes and
// closes storage.
func (a *app) Close() {
	if a.runCancel != nil {
		a.runCancel()
		<-a.runDone
	}
	a.janitor.Stop()
	a.alarms.Wait()
	if err := a.storage.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}
