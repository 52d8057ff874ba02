package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/example/campus-scheduler/internal/application"
	"github.com/example/campus-scheduler/internal/logging"
)

var (
	errBadRequestBody   = errors.New("요청 형식이 올바르지 않습니다.")
	errMissingPrincipal = errors.New("로그인이 필요합니다.")
	errInvalidUserType  = errors.New("사용자 유형이 올바르지 않습니다.")
	errInvalidEventID   = errors.New("일정 ID가 올바르지 않습니다.")
	errInvalidSlotID    = errors.New("시간표 항목 ID가 올바르지 않습니다.")
	errInvalidTitle     = errors.New("과목명이 올바르지 않습니다.")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr     *application.ValidationError
		conflict *application.ConflictError
	)
	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "FORBIDDEN",
			Message:   localizedStatusMessage(http.StatusForbidden),
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: localizedStatusMessage(http.StatusNotFound)})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "이미 존재하는 항목입니다."})
	case errors.As(err, &conflict):
		r.writeJSON(ctx, w, http.StatusConflict, toConflictResponse(conflict))
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: localizedStatusMessage(http.StatusUnprocessableEntity),
			Errors:  copyFieldErrors(vErr.FieldErrors),
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: localizedStatusMessage(http.StatusInternalServerError)})
	}
}

// decode reads a JSON body into dst and runs its validate tags. It writes
// the error response itself and reports whether the handler may continue.
func (r responder) decode(ctx context.Context, w http.ResponseWriter, req *http.Request, dst any) bool {
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		r.loggerFor(ctx).DebugContext(ctx, "failed to decode body", "error", err)
		r.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	if fields := validateRequest(dst); len(fields) > 0 {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: localizedStatusMessage(http.StatusUnprocessableEntity),
			Errors:  fields,
		})
		return false
	}
	return true
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return logging.OrDefault(ctx, r.logger)
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "요청 내용이 올바르지 않습니다."
	case http.StatusUnauthorized:
		return "로그인이 필요합니다."
	case http.StatusForbidden:
		return "이 작업을 수행할 권한이 없습니다."
	case http.StatusNotFound:
		return "요청한 항목을 찾을 수 없습니다."
	case http.StatusConflict:
		return "요청이 현재 상태와 충돌합니다."
	case http.StatusUnprocessableEntity:
		return "입력값이 올바르지 않습니다."
	case http.StatusTooManyRequests:
		return "요청이 너무 많습니다. 잠시 후 다시 시도해 주세요."
	case http.StatusServiceUnavailable:
		return "서비스를 사용할 수 없습니다."
	default:
		return "서버 내부 오류가 발생했습니다."
	}
}

func conflictMessage(reason application.ConflictReason) string {
	if reason == application.ConflictDuplicateCourse {
		return "이미 시간표에 등록된 과목입니다."
	}
	return "기존 시간표와 겹치는 시간이 있습니다."
}

func copyFieldErrors(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type periodRangeDTO struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type conflictDTO struct {
	Day              int            `json:"day"`
	ConflictingTitle string         `json:"conflicting_title"`
	ConflictingSlot  string         `json:"conflicting_slot_id,omitempty"`
	PeriodRange      periodRangeDTO `json:"period_range"`
	ExistingRange    periodRangeDTO `json:"existing_range"`
}

type conflictResponse struct {
	Accepted  bool          `json:"accepted"`
	Reason    string        `json:"reason"`
	Message   string        `json:"message"`
	Conflicts []conflictDTO `json:"conflicts"`
}

func toConflictResponse(err *application.ConflictError) conflictResponse {
	out := conflictResponse{
		Accepted:  false,
		Reason:    string(err.Reason),
		Message:   conflictMessage(err.Reason),
		Conflicts: make([]conflictDTO, 0, len(err.Conflicts)),
	}
	for _, c := range err.Conflicts {
		out.Conflicts = append(out.Conflicts, conflictDTO{
			Day:              c.Day,
			ConflictingTitle: c.ConflictingTitle,
			ConflictingSlot:  c.ConflictingSlot,
			PeriodRange:      periodRangeDTO{Start: c.PeriodRange.Start, End: c.PeriodRange.End},
			ExistingRange:    periodRangeDTO{Start: c.Existing.Start, End: c.Existing.End},
		})
	}
	return out
}
