package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/campus-scheduler/internal/keylock"
	"github.com/example/campus-scheduler/internal/period"
	"github.com/example/campus-scheduler/internal/persistence"
	"github.com/example/campus-scheduler/internal/recurrence"
	"github.com/example/campus-scheduler/internal/scheduler"
)

// TimetableService validates course bookings and keeps each user's weekly
// timetable free of overlapping slots.
type TimetableService struct {
	slots       persistence.SlotRepository
	clock       *period.Clock
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	users *keylock.Locker
	cache *timetableCache
}

// NewTimetableService wires dependencies for timetable operations.
func NewTimetableService(slots persistence.SlotRepository, clock *period.Clock, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *TimetableService {
	return NewTimetableServiceWithLogger(slots, clock, engine, idGenerator, now, nil)
}

// NewTimetableServiceWithLogger wires dependencies with a specified logger.
func NewTimetableServiceWithLogger(slots persistence.SlotRepository, clock *period.Clock, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TimetableService {
	if clock == nil {
		clock, _ = period.NewClock(period.DefaultRules())
	}
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TimetableService{
		slots:       slots,
		clock:       clock,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		users:       keylock.New(),
		cache:       newTimetableCache(30*time.Second, 256, now),
	}
}

func (s *TimetableService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TimetableService", operation, attrs...)
}

// BookCourse adds every slot of a new course or none of them. Duplicate
// titles and slots colliding with the timetable are refused with a
// *ConflictError listing every collision.
func (s *TimetableService) BookCourse(ctx context.Context, params BookCourseParams) (result BookingResult, err error) {
	if s == nil {
		err = fmt.Errorf("TimetableService is nil")
		return
	}
	if s.slots == nil {
		err = fmt.Errorf("slot repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "BookCourse", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to book course", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("title", result.Title).InfoContext(ctx, "course booked", "slots", len(result.SlotIDs))
	}()

	if err = validatePrincipal(params.Principal); err != nil {
		return
	}
	course, vErr := s.prepareCourse(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	userID := params.Principal.UserID
	unlock := s.users.Lock(userID)
	defer unlock()

	err = s.slots.WithSlotTx(ctx, func(store persistence.SlotStore) error {
		ids, err := s.propose(ctx, store, userID, course)
		result.SlotIDs = ids
		return err
	})
	if err != nil {
		err = mapSlotRepoError(err)
		return
	}
	s.cache.Invalidate(userID)
	result.Title = course.title
	return
}

// ReplaceCourse removes the course stored under CurrentTitle and books the
// new definition in the same transaction. A refused booking rolls the
// removal back, leaving the timetable untouched.
func (s *TimetableService) ReplaceCourse(ctx context.Context, params ReplaceCourseParams) (result BookingResult, err error) {
	if s == nil {
		err = fmt.Errorf("TimetableService is nil")
		return
	}
	if s.slots == nil {
		err = fmt.Errorf("slot repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ReplaceCourse",
		"principal_id", params.Principal.UserID,
		"current_title", params.CurrentTitle,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to replace course", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("title", result.Title).InfoContext(ctx, "course replaced", "slots", len(result.SlotIDs))
	}()

	if err = validatePrincipal(params.Principal); err != nil {
		return
	}
	current := strings.TrimSpace(params.CurrentTitle)
	course, vErr := s.prepareCourse(params.Input)
	if current == "" {
		vErr.add("current_title", "변경할 강의를 지정해 주세요")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	userID := params.Principal.UserID
	unlock := s.users.Lock(userID)
	defer unlock()

	err = s.slots.WithSlotTx(ctx, func(store persistence.SlotStore) error {
		removed, err := store.DeleteSlotsByTitle(ctx, userID, current)
		if err != nil {
			return err
		}
		if removed == 0 {
			return ErrNotFound
		}
		ids, err := s.propose(ctx, store, userID, course)
		result.SlotIDs = ids
		return err
	})
	if err != nil {
		result.SlotIDs = nil
		err = mapSlotRepoError(err)
		return
	}
	s.cache.Invalidate(userID)
	result.Title = course.title
	return
}

// DeleteCourse removes every slot stored under title.
func (s *TimetableService) DeleteCourse(ctx context.Context, principal Principal, title string) (err error) {
	if s == nil {
		return fmt.Errorf("TimetableService is nil")
	}
	if s.slots == nil {
		return fmt.Errorf("slot repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteCourse", "principal_id", principal.UserID, "title", title)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete course", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "course deleted")
	}()

	if err = validatePrincipal(principal); err != nil {
		return
	}
	title = strings.TrimSpace(title)

	unlock := s.users.Lock(principal.UserID)
	defer unlock()

	err = s.slots.WithSlotTx(ctx, func(store persistence.SlotStore) error {
		removed, err := store.DeleteSlotsByTitle(ctx, principal.UserID, title)
		if err != nil {
			return err
		}
		if removed == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		err = mapSlotRepoError(err)
		return
	}
	s.cache.Invalidate(principal.UserID)
	return
}

// DeleteSlot removes a single slot owned by the principal.
func (s *TimetableService) DeleteSlot(ctx context.Context, principal Principal, slotID string) (err error) {
	if s == nil {
		return fmt.Errorf("TimetableService is nil")
	}
	if s.slots == nil {
		return fmt.Errorf("slot repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteSlot", "principal_id", principal.UserID, "slot_id", slotID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "slot deleted")
	}()

	if err = validatePrincipal(principal); err != nil {
		return
	}

	unlock := s.users.Lock(principal.UserID)
	defer unlock()

	if err = s.slots.DeleteSlot(ctx, slotID, principal.UserID); err != nil {
		err = mapSlotRepoError(err)
		return
	}
	s.cache.Invalidate(principal.UserID)
	return
}

// ListTimetable returns the principal's slots ordered by day and period.
func (s *TimetableService) ListTimetable(ctx context.Context, principal Principal) ([]TimetableSlot, error) {
	if s == nil {
		return nil, fmt.Errorf("TimetableService is nil")
	}
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}
	if s.slots == nil {
		return []TimetableSlot{}, nil
	}
	if cached, ok := s.cache.Get(principal.UserID); ok {
		return cached, nil
	}
	generation := s.cache.Generation(principal.UserID)

	stored, err := s.slots.ListSlots(ctx, principal.UserID)
	if err != nil {
		return nil, mapSlotRepoError(err)
	}
	slots := make([]TimetableSlot, 0, len(stored))
	for _, slot := range stored {
		slots = append(slots, s.toTimetableSlot(slot))
	}
	s.cache.Store(principal.UserID, generation, slots)
	return slots, nil
}

// GetCourse returns every slot stored under title.
func (s *TimetableService) GetCourse(ctx context.Context, principal Principal, title string) (Course, error) {
	slots, err := s.ListTimetable(ctx, principal)
	if err != nil {
		return Course{}, err
	}
	title = strings.TrimSpace(title)

	var course Course
	for _, slot := range slots {
		if slot.Title != title {
			continue
		}
		if len(course.Slots) == 0 {
			course = Course{
				Title:     slot.Title,
				Credits:   slot.Credits,
				Professor: slot.Professor,
				Color:     slot.Color,
				Memo:      slot.Memo,
			}
		}
		course.Slots = append(course.Slots, slot)
	}
	if len(course.Slots) == 0 {
		return Course{}, ErrNotFound
	}
	return course, nil
}

// ListCourses returns the principal's distinct courses and the sum of their credits.
func (s *TimetableService) ListCourses(ctx context.Context, principal Principal) (CourseList, error) {
	if s == nil {
		return CourseList{}, fmt.Errorf("TimetableService is nil")
	}
	if err := validatePrincipal(principal); err != nil {
		return CourseList{}, err
	}
	list := CourseList{Courses: []CourseSummary{}}
	if s.slots == nil {
		return list, nil
	}

	summaries, err := s.slots.ListCourses(ctx, principal.UserID)
	if err != nil {
		return CourseList{}, mapSlotRepoError(err)
	}
	for _, summary := range summaries {
		list.Courses = append(list.Courses, CourseSummary{
			Title:     summary.Title,
			Credits:   summary.Credits,
			SlotCount: summary.SlotCount,
		})
		if summary.Credits != nil {
			list.TotalCredits += *summary.Credits
		}
	}
	return list, nil
}

// DayTimetable returns the classes held on date (YYYY-MM-DD). An empty date
// means today. Weekends have no classes.
func (s *TimetableService) DayTimetable(ctx context.Context, principal Principal, date string) (DayTimetable, error) {
	if s == nil {
		return DayTimetable{}, fmt.Errorf("TimetableService is nil")
	}
	day, err := s.resolveDate(date)
	if err != nil {
		return DayTimetable{}, err
	}

	view := DayTimetable{
		Date:  day.Format(dateLayout),
		Day:   recurrence.TimetableDay(day.Weekday()),
		Slots: []TimetableSlot{},
	}
	slots, err := s.ListTimetable(ctx, principal)
	if err != nil {
		return DayTimetable{}, err
	}
	if view.Day == 0 {
		return view, nil
	}
	for _, slot := range slots {
		if slot.Day == view.Day {
			view.Slots = append(view.Slots, slot)
		}
	}
	return view, nil
}

// WeekTimetable projects the timetable onto the Monday to Friday dates of
// the week containing date. An empty date means the current week.
func (s *TimetableService) WeekTimetable(ctx context.Context, principal Principal, date string) (WeekTimetable, error) {
	if s == nil {
		return WeekTimetable{}, fmt.Errorf("TimetableService is nil")
	}
	ref, err := s.resolveDate(date)
	if err != nil {
		return WeekTimetable{}, err
	}
	slots, err := s.ListTimetable(ctx, principal)
	if err != nil {
		return WeekTimetable{}, err
	}

	monday := s.engine.WeekStart(ref)
	friday := monday.AddDate(0, 0, 4)
	view := WeekTimetable{WeekStart: monday.Format(dateLayout), Occurrences: []ClassOccurrence{}}

	for _, slot := range slots {
		weekday, ok := recurrence.Weekday(slot.Day)
		if !ok {
			continue
		}
		start, end, err := s.clock.Bounds(slot.StartPeriod, slot.EndPeriod)
		if err != nil {
			s.loggerWith(ctx, "WeekTimetable", "slot_id", slot.ID).WarnContext(ctx, "slot outside the period grid", "error", err)
			continue
		}
		occurrences, err := s.engine.GenerateOccurrences(recurrence.Rule{
			ID:       slot.ID,
			SourceID: slot.Title,
			Weekdays: []time.Weekday{weekday},
			StartsOn: monday,
			EndsOn:   &friday,
		}, start, end-start, recurrence.GenerateOptions{})
		if err != nil {
			return WeekTimetable{}, fmt.Errorf("project slot %s: %w", slot.ID, err)
		}
		for _, occ := range occurrences {
			view.Occurrences = append(view.Occurrences, ClassOccurrence{
				SlotID:   occ.RuleID,
				Title:    occ.SourceID,
				Location: slot.Location,
				Color:    slot.Color,
				Start:    occ.Start,
				End:      occ.End,
			})
		}
	}

	sort.SliceStable(view.Occurrences, func(i, j int) bool {
		a, b := view.Occurrences[i], view.Occurrences[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.SlotID < b.SlotID
	})
	return view, nil
}

func (s *TimetableService) resolveDate(date string) (time.Time, error) {
	loc := s.engine.Location()
	if strings.TrimSpace(date) == "" {
		y, m, d := s.now().In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := parseDate(date, loc)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("date", "날짜는 YYYY-MM-DD 형식이어야 합니다")
		return time.Time{}, vErr
	}
	return day, nil
}

// preparedCourse is a validated booking with periods resolved.
type preparedCourse struct {
	title      string
	credits    *int
	professor  *string
	color      string
	memo       *string
	candidates []scheduler.Candidate
}

func (s *TimetableService) prepareCourse(input CourseInput) (preparedCourse, *ValidationError) {
	vErr := &ValidationError{}
	validateTitle(input.Title, vErr)

	course := preparedCourse{
		title:     strings.TrimSpace(input.Title),
		credits:   input.Credits,
		professor: normalizeOptionalString(input.Professor),
		memo:      normalizeOptionalString(input.Memo),
		color:     normalizeColor(input.Color, vErr),
	}
	if input.Credits != nil && *input.Credits < 0 {
		vErr.add("credits", "학점은 0 이상이어야 합니다")
	}
	if len(input.Slots) == 0 {
		vErr.add("slots", "수업 시간을 하나 이상 입력해 주세요")
		return course, vErr
	}

	for i, slot := range input.Slots {
		field := fmt.Sprintf("slots[%d]", i)
		if slot.Day < 1 || slot.Day > 5 {
			vErr.add(field+".day", "요일은 1(월)부터 5(금) 사이여야 합니다")
			continue
		}
		start, startErr := period.ParseTimeOfDay(slot.StartTime)
		if startErr != nil {
			vErr.add(field+".start_time", "시간은 HH:MM 형식이어야 합니다")
		}
		end, endErr := period.ParseTimeOfDay(slot.EndTime)
		if endErr != nil {
			vErr.add(field+".end_time", "시간은 HH:MM 형식이어야 합니다")
		}
		if startErr != nil || endErr != nil {
			continue
		}
		first, last, err := s.clock.RangeFromTimes(start, end)
		if err != nil {
			vErr.add(field, periodErrorMessage(err))
			continue
		}
		course.candidates = append(course.candidates, scheduler.Candidate{
			Day:      slot.Day,
			Range:    scheduler.Range{Start: first, End: last},
			Location: strings.TrimSpace(slot.Location),
		})
	}
	if vErr.HasErrors() {
		return course, vErr
	}

	for _, pair := range scheduler.SelfOverlaps(course.candidates) {
		vErr.add(fmt.Sprintf("slots[%d]", pair[1]), fmt.Sprintf("%d번째 수업 시간과 겹칩니다", pair[0]+1))
	}
	return course, vErr
}

func periodErrorMessage(err error) string {
	switch {
	case errors.Is(err, period.ErrInvalidTime):
		return "교시 시작 시각에 맞지 않는 시간입니다"
	case errors.Is(err, period.ErrOutOfRange):
		return "수업 가능한 교시 범위를 벗어났습니다"
	case errors.Is(err, period.ErrEmptyRange):
		return "종료 시간은 시작 시간보다 늦어야 합니다"
	default:
		return "수업 시간이 올바르지 않습니다"
	}
}

// propose runs the conflict resolver against store and converts a refusal
// into a *ConflictError so the surrounding transaction rolls back.
func (s *TimetableService) propose(ctx context.Context, store persistence.SlotStore, userID string, course preparedCourse) ([]string, error) {
	decision, err := scheduler.Propose(ctx, &resolverStore{
		store:  store,
		course: course,
		newID:  s.idGenerator,
		now:    s.now,
	}, scheduler.Booking{UserID: userID, Title: course.title, Candidates: course.candidates})
	if err != nil {
		return nil, err
	}
	if decision.Accepted {
		return decision.SlotIDs, nil
	}

	cErr := &ConflictError{Title: course.title, Reason: ConflictOverlap}
	if decision.Reason == scheduler.ReasonDuplicateCourse {
		cErr.Reason = ConflictDuplicateCourse
	}
	for _, conflict := range decision.Conflicts {
		cErr.Conflicts = append(cErr.Conflicts, ConflictDetail{
			Day:              conflict.Day,
			ConflictingTitle: conflict.Title,
			ConflictingSlot:  conflict.SlotID,
			PeriodRange:      PeriodRange{Start: conflict.Overlap.Start, End: conflict.Overlap.End},
			Existing:         PeriodRange{Start: conflict.Existing.Start, End: conflict.Existing.End},
		})
	}
	return nil, cErr
}

func (s *TimetableService) toTimetableSlot(slot persistence.Slot) TimetableSlot {
	out := TimetableSlot{
		ID:          slot.ID,
		Day:         slot.Day,
		StartPeriod: slot.StartPeriod,
		EndPeriod:   slot.EndPeriod,
		Title:       slot.Title,
		Location:    slot.Location,
		Color:       slot.Color,
		Memo:        slot.Memo,
		Professor:   slot.Professor,
		Credits:     slot.Credits,
		CreatedAt:   slot.CreatedAt,
	}
	if start, end, err := s.clock.Bounds(slot.StartPeriod, slot.EndPeriod); err == nil {
		out.StartTime = period.FormatTimeOfDay(start)
		out.EndTime = period.FormatTimeOfDay(end)
	}
	return out
}

// resolverStore adapts a transaction-scoped persistence.SlotStore to the
// conflict resolver.
type resolverStore struct {
	store  persistence.SlotStore
	course preparedCourse
	newID  func() string
	now    func() time.Time
}

func (r *resolverStore) SlotsByTitle(ctx context.Context, userID, title string) ([]scheduler.Slot, error) {
	stored, err := r.store.SlotsByTitle(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	slots := make([]scheduler.Slot, 0, len(stored))
	for _, slot := range stored {
		slots = append(slots, toSchedulerSlot(slot))
	}
	return slots, nil
}

func (r *resolverStore) FindOverlapping(ctx context.Context, userID string, day int, rng scheduler.Range) (scheduler.Slot, bool, error) {
	slot, err := r.store.FindOverlapping(ctx, userID, day, rng.Start, rng.End)
	if errors.Is(err, persistence.ErrNotFound) {
		return scheduler.Slot{}, false, nil
	}
	if err != nil {
		return scheduler.Slot{}, false, err
	}
	return toSchedulerSlot(slot), true, nil
}

func (r *resolverStore) InsertSlots(ctx context.Context, booking scheduler.Booking) ([]string, error) {
	createdAt := r.now()
	slots := make([]persistence.Slot, 0, len(booking.Candidates))
	for _, candidate := range booking.Candidates {
		slots = append(slots, persistence.Slot{
			ID:          r.newID(),
			UserID:      booking.UserID,
			Day:         candidate.Day,
			StartPeriod: candidate.Range.Start,
			EndPeriod:   candidate.Range.End,
			Title:       booking.Title,
			Location:    candidate.Location,
			Color:       r.course.color,
			Memo:        r.course.memo,
			Professor:   r.course.professor,
			Credits:     r.course.credits,
			CreatedAt:   createdAt,
		})
	}
	return r.store.InsertSlots(ctx, slots)
}

func toSchedulerSlot(slot persistence.Slot) scheduler.Slot {
	return scheduler.Slot{
		ID:    slot.ID,
		Title: slot.Title,
		Day:   slot.Day,
		Range: scheduler.Range{Start: slot.StartPeriod, End: slot.EndPeriod},
	}
}

func mapSlotRepoError(err error) error {
	if err == nil {
		return nil
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return cErr
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("slots", "수업 시간이 올바르지 않습니다")
		return vErr
	}
	return err
}
