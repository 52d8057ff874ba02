package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/campus-scheduler/internal/application"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error
	GetEvent(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
	ListEventsByMonth(ctx context.Context, params application.ListEventsParams) ([]application.Event, error)
	ListEventsOnDate(ctx context.Context, principal application.Principal, date string) ([]application.Event, error)
}

type EventHandler struct {
	service   eventService
	responder responder
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: service, responder: newResponder(logger)}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if !h.responder.decode(r.Context(), w, r, &req) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toEventDTO(event))
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID := strings.TrimSpace(chi.URLParam(r, "id"))
	if eventID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req eventRequest
	if !h.responder.decode(r.Context(), w, r, &req) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{
		Principal: principal,
		EventID:   eventID,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID := strings.TrimSpace(chi.URLParam(r, "id"))
	if eventID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteEvent(r.Context(), principal, eventID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID := strings.TrimSpace(chi.URLParam(r, "id"))
	if eventID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.GetEvent(r.Context(), principal, eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

func (h *EventHandler) ListByMonth(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	year, yearErr := strconv.Atoi(strings.TrimSpace(query.Get("year")))
	month, monthErr := strconv.Atoi(strings.TrimSpace(query.Get("month")))
	if yearErr != nil || monthErr != nil {
		fields := map[string]string{}
		if yearErr != nil {
			fields["year"] = "연도를 숫자로 입력해 주세요."
		}
		if monthErr != nil {
			fields["month"] = "월을 숫자로 입력해 주세요."
		}
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
			Message: localizedStatusMessage(http.StatusUnprocessableEntity),
			Errors:  fields,
		})
		return
	}

	events, err := h.service.ListEventsByMonth(r.Context(), application.ListEventsParams{
		Principal: principal,
		Year:      year,
		Month:     time.Month(month),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventListResponse{Events: toEventDTOs(events)})
}

func (h *EventHandler) Today(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	events, err := h.service.ListEventsOnDate(r.Context(), principal, "")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventListResponse{Events: toEventDTOs(events)})
}

type eventRequest struct {
	Title  string   `json:"title" validate:"required,max=255"`
	Date   string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time   *string  `json:"time"`
	Color  string   `json:"color" validate:"color"`
	Memo   *string  `json:"memo"`
	Alarms []string `json:"alarms" validate:"max=6,dive,alarm_offset"`
}

func (r eventRequest) toInput() application.EventInput {
	var clock *string
	if r.Time != nil {
		if trimmed := strings.TrimSpace(*r.Time); trimmed != "" {
			clock = &trimmed
		}
	}
	return application.EventInput{
		Title:  strings.TrimSpace(r.Title),
		Date:   strings.TrimSpace(r.Date),
		Time:   clock,
		Color:  strings.TrimSpace(r.Color),
		Memo:   r.Memo,
		Alarms: append([]string{}, r.Alarms...),
	}
}

type eventDTO struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Date      string   `json:"date"`
	Time      *string  `json:"time"`
	Color     string   `json:"color"`
	Memo      *string  `json:"memo,omitempty"`
	Alarms    []string `json:"alarms"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func toEventDTO(event application.Event) eventDTO {
	alarms := event.Alarms
	if alarms == nil {
		alarms = []string{}
	}
	return eventDTO{
		ID:        event.ID,
		Title:     event.Title,
		Date:      event.Date,
		Time:      event.Time,
		Color:     event.Color,
		Memo:      event.Memo,
		Alarms:    alarms,
		CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: event.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toEventDTOs(events []application.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}

type eventListResponse struct {
	Events []eventDTO `json:"events"`
}
