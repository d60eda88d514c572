// Event and to-do HTTP handlers.
//
// This file exposes REST endpoints for calendar events and to-dos:
//   - POST   /events               (create, Idempotency-Key aware)
//   - PUT    /events/{id}          (replace, reschedules reminders)
//   - DELETE /events/{id}
//   - GET    /events/{id}/segments (per local day split)
//   - POST   /todos                (create, Idempotency-Key aware)
//   - PUT    /todos/{id}/done
//   - DELETE /todos/{id}
//
// Date-times in request bodies are local civil time without an offset, e.g.
// "2025-11-05T09:30"; all-day values are plain dates.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-ops-notify/internal/http/middleware"
	"github.com/tbourn/go-ops-notify/internal/services"
	"github.com/tbourn/go-ops-notify/internal/spans"
)

// Idempotency scopes for create endpoints. The router passes the same names
// to the idempotency middleware.
const (
	ScopeEvents = "events"
	ScopeTodos  = "todos"
)

//
// DTOs
//

// EventRequest is the JSON payload for creating or replacing an event.
type EventRequest struct {
	Title string `json:"title" example:"Concrete pour - level 3"`
	// Start is a local date-time, or a date when AllDay is set.
	Start string `json:"start" binding:"required" example:"2025-11-05T09:30"`
	// End defaults to Start; for all-day events it is the inclusive last date.
	End    string `json:"end" example:"2025-11-05T12:00"`
	AllDay bool   `json:"all_day" example:"false"`
	// ReminderOffsets are minutes before the start; invalid entries are ignored.
	ReminderOffsets []any `json:"reminder_offsets" swaggertype:"array,number" example:"60,10"`
}

func (r EventRequest) input() services.EventInput {
	return services.EventInput{
		Title:           r.Title,
		Start:           r.Start,
		End:             r.End,
		AllDay:          r.AllDay,
		ReminderOffsets: r.ReminderOffsets,
	}
}

// TodoRequest is the JSON payload for creating a to-do.
type TodoRequest struct {
	Title string `json:"title" example:"Submit pay application"`
	// Due is a local date-time, a date, or empty.
	Due             string `json:"due" example:"2025-11-07"`
	ReminderOffsets []any  `json:"reminder_offsets" swaggertype:"array,number" example:"1440"`
}

// SegmentsResponse lists the local-day pieces of an event.
type SegmentsResponse struct {
	EventID    string          `json:"event_id"`
	Segments   []spans.Segment `json:"segments"`
	TotalHours float64         `json:"total_hours"`
}

//
// Idempotency helpers
//

// priorResource returns the id created by an earlier request with the same
// Idempotency-Key, if any.
func (h *Handlers) priorResource(c *gin.Context, scope string) (string, bool) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil {
		return "", false
	}
	id, found, err := h.idem.Lookup(c.Request.Context(), userID(c), scope, key)
	if err != nil || !found {
		return "", false
	}
	return id, true
}

// rememberResource records the created id under the request's key. Best effort.
func (h *Handlers) rememberResource(c *gin.Context, scope, id string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil {
		return
	}
	if err := h.idem.Save(c.Request.Context(), userID(c), scope, key, id, status); err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("scope", scope).Msg("idempotency save failed")
	}
}

func validID(c *gin.Context, what string) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, what+" id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Events
//

// CreateEvent godoc
// @ID          createEvent
// @Summary     Create a calendar event
// @Description Creates an event and schedules its reminders. Supports the Idempotency-Key header (same key → same event).
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.EventRequest  true  "Event payload"
//
// @Success     201  {object}  domain.CalendarEvent
// @Success     200  {object}  domain.CalendarEvent  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events [post]
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)

	if id, found := h.priorResource(c, ScopeEvents); found {
		if prev, err := h.events.Get(ctx, uid, id); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	ev, err := h.events.Create(ctx, uid, req.input())
	if err != nil {
		failFor(c, err, ErrCodeCreateFailed)
		return
	}
	h.rememberResource(c, ScopeEvents, ev.ID, http.StatusCreated)
	ok(c, http.StatusCreated, ev)
}

// UpdateEvent godoc
// @ID          updateEvent
// @Summary     Replace a calendar event
// @Description Replaces an event owned by the current user and reschedules its pending reminders.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Event ID (UUID)"        format(uuid)
// @Param       body       body    handlers.EventRequest  true  "Event payload"
//
// @Success     200  {object}  domain.CalendarEvent
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Event not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events/{id} [put]
func (h *Handlers) UpdateEvent(c *gin.Context) {
	id, valid := validID(c, "event")
	if !valid {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ev, err := h.events.Update(c.Request.Context(), userID(c), id, req.input())
	if err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, ev)
}

// DeleteEvent godoc
// @ID          deleteEvent
// @Summary     Delete a calendar event
// @Description Deletes an event and cancels its pending reminders.
// @Tags        Events
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Event ID (UUID)"        format(uuid)
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Event not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events/{id} [delete]
func (h *Handlers) DeleteEvent(c *gin.Context) {
	id, valid := validID(c, "event")
	if !valid {
		return
	}
	if err := h.events.Delete(c.Request.Context(), userID(c), id); err != nil {
		failFor(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// EventSegments godoc
// @ID          eventSegments
// @Summary     Split an event by local day
// @Description Returns one segment per local calendar day the event touches, with hours per segment.
// @Tags        Events
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Event ID (UUID)"        format(uuid)
//
// @Success     200  {object}  handlers.SegmentsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Event not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events/{id}/segments [get]
func (h *Handlers) EventSegments(c *gin.Context) {
	id, valid := validID(c, "event")
	if !valid {
		return
	}
	segs, err := h.events.Segments(c.Request.Context(), userID(c), id)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	var total float64
	for _, s := range segs {
		total += s.Hours
	}
	ok(c, http.StatusOK, SegmentsResponse{EventID: id, Segments: segs, TotalHours: total})
}

//
// To-dos
//

// CreateTodo godoc
// @ID          createTodo
// @Summary     Create a to-do
// @Description Creates a to-do; reminders are scheduled when a due time or date is given. Supports Idempotency-Key.
// @Tags        Todos
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.TodoRequest  true  "To-do payload"
//
// @Success     201  {object}  domain.Todo
// @Success     200  {object}  domain.Todo  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /todos [post]
func (h *Handlers) CreateTodo(c *gin.Context) {
	var req TodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)

	if id, found := h.priorResource(c, ScopeTodos); found {
		if prev, err := h.todos.Get(ctx, uid, id); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	t, err := h.todos.Create(ctx, uid, services.TodoInput{
		Title:           req.Title,
		Due:             req.Due,
		ReminderOffsets: req.ReminderOffsets,
	})
	if err != nil {
		failFor(c, err, ErrCodeCreateFailed)
		return
	}
	h.rememberResource(c, ScopeTodos, t.ID, http.StatusCreated)
	ok(c, http.StatusCreated, t)
}

// CompleteTodo godoc
// @ID          completeTodo
// @Summary     Mark a to-do done
// @Description Marks the to-do done and cancels its pending reminders. Repeating the call is harmless.
// @Tags        Todos
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "To-do ID (UUID)"        format(uuid)
//
// @Success     200  {object}  domain.Todo
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "To-do not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /todos/{id}/done [put]
func (h *Handlers) CompleteTodo(c *gin.Context) {
	id, valid := validID(c, "todo")
	if !valid {
		return
	}
	t, err := h.todos.Complete(c.Request.Context(), userID(c), id)
	if err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteTodo godoc
// @ID          deleteTodo
// @Summary     Delete a to-do
// @Description Deletes a to-do and cancels its pending reminders.
// @Tags        Todos
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "To-do ID (UUID)"        format(uuid)
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "To-do not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /todos/{id} [delete]
func (h *Handlers) DeleteTodo(c *gin.Context) {
	id, valid := validID(c, "todo")
	if !valid {
		return
	}
	if err := h.todos.Delete(c.Request.Context(), userID(c), id); err != nil {
		failFor(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}
