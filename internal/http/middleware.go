package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/example/campus-scheduler/internal/application"
	"github.com/example/campus-scheduler/internal/logging"
)

const (
	// HeaderUserID carries the authenticated user id set by the gateway.
	HeaderUserID = "X-User-ID"
	// HeaderUserType carries the authenticated account kind set by the gateway.
	HeaderUserType = "X-User-Type"
)

// RequirePrincipal resolves the principal from the gateway headers. Requests
// without a user id or with an unknown user type are rejected with 401.
func RequirePrincipal(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPrincipal)
				return
			}

			userType := application.UserTypeStudent
			if raw := strings.TrimSpace(r.Header.Get(HeaderUserType)); raw != "" {
				userType = application.UserType(strings.ToLower(raw))
			}
			if !userType.Valid() {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errInvalidUserType)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), application.Principal{UserID: userID, UserType: userType})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit rejects requests with 429 once limiter is exhausted. A nil
// limiter disables limiting.
func RateLimit(limiter *rate.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				responder.writeJSON(r.Context(), w, http.StatusTooManyRequests, errorResponse{
					Message: localizedStatusMessage(http.StatusTooManyRequests),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger attaches a request scoped logger to the context and logs the
// outcome of every request. It reuses the chi request id when present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				"request_id", chimiddleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.InfoContext(ctx, "request completed",
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
