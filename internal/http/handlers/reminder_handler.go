package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ops-notify/internal/domain"
)

// ListRemindersResponse is returned by GET /reminders.
type ListRemindersResponse struct {
	Reminders  []domain.Reminder `json:"reminders"`
	Pagination Pagination        `json:"pagination"`
}

// SnoozeRequest carries the snooze length in minutes. Fractions are allowed.
type SnoozeRequest struct {
	Minutes float64 `json:"minutes" binding:"required" example:"10"`
}

// SnoozeResponse reports the new fire time.
type SnoozeResponse struct {
	ID     string    `json:"id"`
	FireAt time.Time `json:"fire_at"`
}

// ListReminders godoc
// @ID          listReminders
// @Summary     List reminders
// @Description Returns the current user's reminders, newest fire time first. Supports conditional GET via ETag.
// @Tags        Reminders
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if the list is unchanged"
// @Param       status         query   string  false "Filter by status"  Enums(pending,in_flight,sent)
// @Param       page           query   int     false "Page number (>=1)"  minimum(1) default(1)
// @Param       page_size      query   int     false "Page size (1..100)" minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListRemindersResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reminders [get]
func (h *Handlers) ListReminders(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)
	status := strings.TrimSpace(c.Query("status"))

	count, latest, err := h.reminders.Stats(ctx, uid)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	var ts int64
	if latest != nil {
		ts = latest.UTC().UnixNano()
	}
	etag := fmt.Sprintf(`W/"reminders:%s:%d:%d:%s:%d:%d"`, uid, count, ts, status, page, pageSize)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Header("ETag", etag)
		c.Status(http.StatusNotModified)
		return
	}

	items, total, err := h.reminders.ListPage(ctx, uid, status, page, pageSize)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	c.Header("ETag", etag)
	ok(c, http.StatusOK, ListRemindersResponse{
		Reminders:  items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// SnoozeReminder godoc
// @ID          snoozeReminder
// @Summary     Snooze a reminder
// @Description Moves the reminder's fire time forward by the given minutes and returns it to pending.
// @Tags        Reminders
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Reminder ID (UUID)"     format(uuid)
// @Param       body       body    handlers.SnoozeRequest  true  "Snooze length"
//
// @Success     200  {object}  handlers.SnoozeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Reminder not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reminders/{id}/snooze [post]
func (h *Handlers) SnoozeReminder(c *gin.Context) {
	id, valid := validID(c, "reminder")
	if !valid {
		return
	}
	var req SnoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "minutes is required")
		return
	}
	at, err := h.reminders.Snooze(c.Request.Context(), userID(c), id, req.Minutes)
	if err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, SnoozeResponse{ID: id, FireAt: at})
}

// AckReminder godoc
// @ID          ackReminder
// @Summary     Acknowledge a reminder
// @Description Marks the reminder acknowledged. Acknowledging twice is a no-op.
// @Tags        Reminders
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Reminder ID (UUID)"     format(uuid)
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Reminder not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reminders/{id}/ack [post]
func (h *Handlers) AckReminder(c *gin.Context) {
	id, valid := validID(c, "reminder")
	if !valid {
		return
	}
	if err := h.reminders.Acknowledge(c.Request.Context(), userID(c), id); err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}
