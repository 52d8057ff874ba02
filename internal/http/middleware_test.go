package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/example/campus-scheduler/internal/application"
	"github.com/example/campus-scheduler/internal/logging"
)

func TestRequirePrincipal(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without usable identity headers", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			userID   string
			userType string
		}{
			{name: "missing user id"},
			{name: "blank user id", userID: "   "},
			{name: "unknown user type", userID: "s-1", userType: "professor"},
		}

		for _, tc := range tests {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				req := httptest.NewRequest(http.MethodGet, "/timetable", nil)
				if tc.userID != "" {
					req.Header.Set(HeaderUserID, tc.userID)
				}
				if tc.userType != "" {
					req.Header.Set(HeaderUserType, tc.userType)
				}
				recorder := httptest.NewRecorder()

				handler := RequirePrincipal(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Fatal("next handler should not be called when identity is missing")
				}))
				handler.ServeHTTP(recorder, req)

				if recorder.Code != http.StatusUnauthorized {
					t.Fatalf("expected 401, got %d", recorder.Code)
				}
				var body errorResponse
				if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body.Message == "" {
					t.Fatalf("expected localized message")
				}
			})
		}
	})

	t.Run("attaches principal to request context", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			header string
			want   application.UserType
		}{
			{header: "", want: application.UserTypeStudent},
			{header: "ADMIN", want: application.UserTypeAdmin},
		}
		for _, tc := range tests {
			req := httptest.NewRequest(http.MethodGet, "/timetable", nil)
			req.Header.Set(HeaderUserID, "20251234")
			if tc.header != "" {
				req.Header.Set(HeaderUserType, tc.header)
			}
			recorder := httptest.NewRecorder()

			var captured application.Principal
			handler := RequirePrincipal(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p, ok := PrincipalFromContext(r.Context())
				if !ok {
					t.Fatal("expected principal in request context")
				}
				captured = p
				w.WriteHeader(http.StatusOK)
			}))
			handler.ServeHTTP(recorder, req)

			if recorder.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", recorder.Code)
			}
			if captured.UserID != "20251234" || captured.UserType != tc.want {
				t.Fatalf("unexpected principal: %+v", captured)
			}
		}
	})
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	limiter := rate.NewLimiter(rate.Limit(0.001), 2)
	handler := RateLimit(limiter, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, recorder.Code)
	}

	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent {
		t.Fatalf("expected burst to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", codes[2])
	}

	t.Run("nil limiter disables limiting", func(t *testing.T) {
		t.Parallel()
		h := RateLimit(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		for i := 0; i < 5; i++ {
			recorder := httptest.NewRecorder()
			h.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
			if recorder.Code != http.StatusNoContent {
				t.Fatalf("expected 204, got %d", recorder.Code)
			}
		}
	})
}

func TestResponderHandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantInBody string
	}{
		{name: "unauthorized", err: application.ErrUnauthorized, wantStatus: http.StatusForbidden, wantInBody: "FORBIDDEN"},
		{name: "not found", err: application.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"title": "과목명을 입력해 주세요"}}, wantStatus: http.StatusUnprocessableEntity, wantInBody: "과목명을 입력해 주세요"},
		{
			name: "conflict",
			err: &application.ConflictError{
				Reason: application.ConflictOverlap,
				Title:  "운영체제",
				Conflicts: []application.ConflictDetail{{
					Day:              1,
					ConflictingTitle: "자료구조",
					PeriodRange:      application.PeriodRange{Start: 2, End: 2},
					Existing:         application.PeriodRange{Start: 1, End: 2},
				}},
			},
			wantStatus: http.StatusConflict,
			wantInBody: `"conflicting_title":"자료구조"`,
		},
		{name: "unexpected", err: errUnexpected, wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			recorder := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			newResponder(logging.Discard()).handleServiceError(req.Context(), recorder, tc.err)

			if recorder.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, recorder.Code)
			}
			if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Fatalf("expected JSON content type, got %q", ct)
			}
			if tc.wantInBody != "" && !strings.Contains(recorder.Body.String(), tc.wantInBody) {
				t.Fatalf("expected body to contain %s, got %s", tc.wantInBody, recorder.Body.String())
			}
		})
	}
}

type unexpectedError struct{}

func (unexpectedError) Error() string { return "disk on fire" }

var errUnexpected error = unexpectedError{}
