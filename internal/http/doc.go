// Package http exposes the timetable and personal event services over JSON.
//
// Every route except /healthz requires the gateway headers X-User-ID and
// X-User-Type (student or admin; defaults to student).
//
//   - POST /timetable/courses: books a course. Body courseRequest. 201 with
//     {"accepted":true,"title","slot_ids"}; 409 with {"accepted":false,
//     "reason","conflicts":[{"day","conflicting_title","period_range"}]} when
//     the title is already booked or a slot collides.
//   - GET /timetable, GET /timetable/today, GET /timetable/week?date=: the
//     weekly slots, today's classes and the Monday to Friday projection.
//   - GET /timetable/courses, GET|PUT|DELETE /timetable/courses/{title}: course
//     list with total credits, one course, replace and delete by title.
//   - DELETE /timetable/slots/{id}: removes a single slot.
//   - POST /events, GET /events?year=&month=, GET /events/today,
//     GET|PUT|DELETE /events/{id}: personal events with alarm offsets.
//
// Messages are Korean. Validation failures answer 422 with a field map.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
