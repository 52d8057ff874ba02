package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Timetable *TimetableHandler
	Events    *EventHandler
	Health    HealthChecker
	// Limiter bounds the global request rate; nil disables it.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	// Middleware runs after the built-in stack and before principal resolution.
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(RateLimit(cfg.Limiter, logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health.Ping(ctx); err != nil {
				responder.writeError(req.Context(), w, http.StatusServiceUnavailable, nil)
				return
			}
		}
		responder.writeJSON(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(RequirePrincipal(logger))

		if h := cfg.Timetable; h != nil {
			r.Route("/timetable", func(r chi.Router) {
				r.Get("/", h.List)
				r.Get("/today", h.Today)
				r.Get("/week", h.Week)
				r.Get("/courses", h.ListCourses)
				r.Post("/courses", h.BookCourse)
				r.Get("/courses/{title}", h.GetCourse)
				r.Put("/courses/{title}", h.ReplaceCourse)
				r.Delete("/courses/{title}", h.DeleteCourse)
				r.Delete("/slots/{id}", h.DeleteSlot)
			})
		}

		if h := cfg.Events; h != nil {
			r.Route("/events", func(r chi.Router) {
				r.Get("/", h.ListByMonth)
				r.Post("/", h.Create)
				r.Get("/today", h.Today)
				r.Get("/{id}", h.Get)
				r.Put("/{id}", h.Update)
				r.Delete("/{id}", h.Delete)
			})
		}
	})

	return r
}
