package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DailyHoursResponse is returned by GET /reports/daily-hours.
type DailyHoursResponse struct {
	From string     `json:"from"`
	To   string     `json:"to"`
	Days []DayHours `json:"days"`
}

// DayHours is one row of the daily hours report.
type DayHours struct {
	Day   string  `json:"day" example:"2025-11-05"`
	Hours float64 `json:"hours" example:"7.5"`
}

// DailyHours godoc
// @ID          dailyHours
// @Summary     Scheduled hours per local day
// @Description Sums event hours per local calendar day over an inclusive date range (max 366 days). Days without events report 0.
// @Tags        Reports
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       from       query   string  true  "First day (YYYY-MM-DD)"  example(2025-11-01)
// @Param       to         query   string  true  "Last day (YYYY-MM-DD)"   example(2025-11-07)
//
// @Success     200  {object}  handlers.DailyHoursResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reports/daily-hours [get]
func (h *Handlers) DailyHours(c *gin.Context) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from and to are required")
		return
	}
	totals, err := h.reports.DailyHours(c.Request.Context(), userID(c), from, to)
	if err != nil {
		failFor(c, err, ErrCodeReportFailed)
		return
	}
	days := make([]DayHours, 0, len(totals))
	for _, t := range totals {
		days = append(days, DayHours{Day: t.Day, Hours: t.Hours})
	}
	ok(c, http.StatusOK, DailyHoursResponse{From: from, To: to, Days: days})
}
