package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunSweep godoc
// @ID          runDispatchSweep
// @Summary     Run a delivery sweep
// @Description Delivers due reminders and pending outbox messages once. A sweep already running elsewhere is reported as skipped.
// @Tags        Dispatch
// @Produce     json
// @Success     200  {object}  services.SweepReport
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /dispatch/sweep [post]
func (h *Handlers) RunSweep(c *gin.Context) {
	rep, err := h.dispatch.RunOnce(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSweepFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, rep)
}
