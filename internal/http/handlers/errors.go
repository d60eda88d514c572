package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ops-notify/internal/http/middleware"
	"github.com/tbourn/go-ops-notify/internal/services"
)

// Stable, machine-readable error codes. Clients branch on these, not on
// messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInvalidInput     = "invalid_input"

	// Operation failures; always 5xx.
	ErrCodeCreateFailed = "create_failed"
	ErrCodeUpdateFailed = "update_failed"
	ErrCodeDeleteFailed = "delete_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeSweepFailed  = "sweep_failed"
	ErrCodeReportFailed = "report_failed"
)

// internalMessage replaces the error text of 5xx responses; the cause is
// logged with the request ID instead.
const internalMessage = "internal error"

type errorMapping struct {
	target error
	status int
	code   string
	msg    string // empty: use err.Error()
}

// serviceErrors is checked in order with errors.Is.
var serviceErrors = []errorMapping{
	{services.ErrInvalidInput, http.StatusBadRequest, ErrCodeInvalidInput, ""},
	{services.ErrReminderNotFound, http.StatusNotFound, ErrCodeNotFound, "reminder not found"},
	{services.ErrEventNotFound, http.StatusNotFound, ErrCodeNotFound, "event not found"},
	{services.ErrTodoNotFound, http.StatusNotFound, ErrCodeNotFound, "todo not found"},
	{services.ErrSubscriptionNotFound, http.StatusNotFound, ErrCodeNotFound, "subscription not found"},
}

// failFor maps a service error to a response. Unmapped errors become a 500
// with fallbackCode and a generic message.
func failFor(c *gin.Context, err error, fallbackCode string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			msg := m.msg
			if msg == "" {
				msg = err.Error()
			}
			fail(c, m.status, m.code, msg)
			return
		}
	}
	middleware.LoggerFrom(c).Error().Err(err).Str("code", fallbackCode).Msg("service error")
	fail(c, http.StatusInternalServerError, fallbackCode, internalMessage)
}
