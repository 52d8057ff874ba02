package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/campus-scheduler/internal/application"
)

type timetableService interface {
	BookCourse(ctx context.Context, params application.BookCourseParams) (application.BookingResult, error)
	ReplaceCourse(ctx context.Context, params application.ReplaceCourseParams) (application.BookingResult, error)
	DeleteCourse(ctx context.Context, principal application.Principal, title string) error
	DeleteSlot(ctx context.Context, principal application.Principal, slotID string) error
	ListTimetable(ctx context.Context, principal application.Principal) ([]application.TimetableSlot, error)
	GetCourse(ctx context.Context, principal application.Principal, title string) (application.Course, error)
	ListCourses(ctx context.Context, principal application.Principal) (application.CourseList, error)
	DayTimetable(ctx context.Context, principal application.Principal, date string) (application.DayTimetable, error)
	WeekTimetable(ctx context.Context, principal application.Principal, date string) (application.WeekTimetable, error)
}

type TimetableHandler struct {
	service   timetableService
	responder responder
	logger    *slog.Logger
}

func NewTimetableHandler(service timetableService, logger *slog.Logger) *TimetableHandler {
	return &TimetableHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *TimetableHandler) BookCourse(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req courseRequest
	if !h.responder.decode(r.Context(), w, r, &req) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.BookCourse(r.Context(), application.BookCourseParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toBookingResponse(result))
}

func (h *TimetableHandler) ReplaceCourse(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	title, ok := courseTitleParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTitle)
		return
	}

	var req courseRequest
	if !h.responder.decode(r.Context(), w, r, &req) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.ReplaceCourse(r.Context(), application.ReplaceCourseParams{
		Principal:    principal,
		CurrentTitle: title,
		Input:        req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "TimetableHandler", "ReplaceCourse", "from", title, "to", result.Title).
		DebugContext(r.Context(), "course replaced")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingResponse(result))
}

func (h *TimetableHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	title, ok := courseTitleParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTitle)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteCourse(r.Context(), principal, title); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *TimetableHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	title, ok := courseTitleParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTitle)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	course, err := h.service.GetCourse(r.Context(), principal, title)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCourseDTO(course))
}

func (h *TimetableHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	list, err := h.service.ListCourses(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := courseListResponse{
		Courses:      make([]courseSummaryDTO, 0, len(list.Courses)),
		TotalCredits: list.TotalCredits,
	}
	for _, c := range list.Courses {
		response.Courses = append(response.Courses, courseSummaryDTO{Title: c.Title, Credits: c.Credits, SlotCount: c.SlotCount})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *TimetableHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slotID := strings.TrimSpace(chi.URLParam(r, "id"))
	if slotID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSlotID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteSlot(r.Context(), principal, slotID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *TimetableHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	slots, err := h.service.ListTimetable(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, timetableResponse{Slots: toSlotDTOs(slots)})
}

func (h *TimetableHandler) Today(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	day, err := h.service.DayTimetable(r.Context(), principal, strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, dayTimetableResponse{
		Date:  day.Date,
		Day:   day.Day,
		Slots: toSlotDTOs(day.Slots),
	})
}

func (h *TimetableHandler) Week(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	week, err := h.service.WeekTimetable(r.Context(), principal, strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := weekTimetableResponse{
		WeekStart:   week.WeekStart,
		Occurrences: make([]occurrenceDTO, 0, len(week.Occurrences)),
	}
	for _, o := range week.Occurrences {
		response.Occurrences = append(response.Occurrences, occurrenceDTO{
			SlotID:   o.SlotID,
			Title:    o.Title,
			Location: o.Location,
			Color:    o.Color,
			Start:    o.Start.Format(time.RFC3339),
			End:      o.End.Format(time.RFC3339),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

// courseTitleParam returns the decoded {title} path segment.
func courseTitleParam(r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "title")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	title := strings.TrimSpace(raw)
	return title, title != ""
}

type slotRequest struct {
	Day       int    `json:"day" validate:"required,min=1,max=5"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Location  string `json:"location" validate:"max=255"`
}

type courseRequest struct {
	Title     string        `json:"title" validate:"required,max=255"`
	Credits   *int          `json:"credits" validate:"omitempty,min=0,max=30"`
	Professor *string       `json:"professor" validate:"omitempty,max=255"`
	Color     string        `json:"color" validate:"color"`
	Memo      *string       `json:"memo"`
	Slots     []slotRequest `json:"slots" validate:"required,min=1,max=20,dive"`
}

func (r courseRequest) toInput() application.CourseInput {
	slots := make([]application.SlotInput, 0, len(r.Slots))
	for _, s := range r.Slots {
		slots = append(slots, application.SlotInput{
			Day:       s.Day,
			StartTime: strings.TrimSpace(s.StartTime),
			EndTime:   strings.TrimSpace(s.EndTime),
			Location:  strings.TrimSpace(s.Location),
		})
	}
	return application.CourseInput{
		Title:     strings.TrimSpace(r.Title),
		Credits:   r.Credits,
		Professor: r.Professor,
		Color:     strings.TrimSpace(r.Color),
		Memo:      r.Memo,
		Slots:     slots,
	}
}

type bookingResponse struct {
	Accepted bool     `json:"accepted"`
	Title    string   `json:"title"`
	SlotIDs  []string `json:"slot_ids"`
}

func toBookingResponse(result application.BookingResult) bookingResponse {
	return bookingResponse{
		Accepted: true,
		Title:    result.Title,
		SlotIDs:  append([]string{}, result.SlotIDs...),
	}
}

type slotDTO struct {
	ID          string  `json:"id"`
	Day         int     `json:"day"`
	StartPeriod int     `json:"start_period"`
	EndPeriod   int     `json:"end_period"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Title       string  `json:"title"`
	Location    string  `json:"location"`
	Color       string  `json:"color"`
	Memo        *string `json:"memo,omitempty"`
	Professor   *string `json:"professor,omitempty"`
	Credits     *int    `json:"credits,omitempty"`
}

func toSlotDTOs(slots []application.TimetableSlot) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotDTO{
			ID:          s.ID,
			Day:         s.Day,
			StartPeriod: s.StartPeriod,
			EndPeriod:   s.EndPeriod,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			Title:       s.Title,
			Location:    s.Location,
			Color:       s.Color,
			Memo:        s.Memo,
			Professor:   s.Professor,
			Credits:     s.Credits,
		})
	}
	return out
}

type timetableResponse struct {
	Slots []slotDTO `json:"slots"`
}

type dayTimetableResponse struct {
	Date  string    `json:"date"`
	Day   int       `json:"day"`
	Slots []slotDTO `json:"slots"`
}

type occurrenceDTO struct {
	SlotID   string `json:"slot_id"`
	Title    string `json:"title"`
	Location string `json:"location"`
	Color    string `json:"color"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type weekTimetableResponse struct {
	WeekStart   string          `json:"week_start"`
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type courseDTO struct {
	Title     string    `json:"title"`
	Credits   *int      `json:"credits,omitempty"`
	Professor *string   `json:"professor,omitempty"`
	Color     string    `json:"color"`
	Memo      *string   `json:"memo,omitempty"`
	Slots     []slotDTO `json:"slots"`
}

func toCourseDTO(course application.Course) courseDTO {
	return courseDTO{
		Title:     course.Title,
		Credits:   course.Credits,
		Professor: course.Professor,
		Color:     course.Color,
		Memo:      course.Memo,
		Slots:     toSlotDTOs(course.Slots),
	}
}

type courseSummaryDTO struct {
	Title     string `json:"title"`
	Credits   *int   `json:"credits,omitempty"`
	SlotCount int    `json:"slot_count"`
}

type courseListResponse struct {
	Courses      []courseSummaryDTO `json:"courses"`
	TotalCredits int                `json:"total_credits"`
}
