package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
	"github.com/tbourn/go-ops-notify/internal/repo"
	"github.com/tbourn/go-ops-notify/internal/spans"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxReportDays caps a daily-hours range.
const maxReportDays = 366

// ReportService aggregates scheduled hours per local day.
type ReportService struct {
	DB    *gorm.DB
	Clock *civiltime.Clock
}

// DailyHours sums the user's event hours per local day over the inclusive
// local date range [from, to]. Events are clipped to the range and every day
// in it is present, zero when nothing was scheduled.
func (s *ReportService) DailyHours(ctx context.Context, userID, from, to string) ([]spans.DayTotal, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "DailyHours",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
	defer span.End()

	fromDate, err := civiltime.ParseDate(from)
	if err != nil {
		return nil, invalid(err)
	}
	toDate, err := civiltime.ParseDate(to)
	if err != nil {
		return nil, invalid(err)
	}
	if toDate < fromDate {
		return nil, fmt.Errorf("%w: from after to", ErrInvalidInput)
	}

	lo, err := s.Clock.StartOfLocalDayUTC(fromDate)
	if err != nil {
		return nil, invalid(err)
	}
	last, err := s.Clock.StartOfLocalDayUTC(toDate)
	if err != nil {
		return nil, invalid(err)
	}
	hi := s.Clock.AddLocalDays(last, 1)

	totals := make(map[string]float64)
	days := 0
	for d := lo; d.Before(hi); d = s.Clock.AddLocalDays(d, 1) {
		if days++; days > maxReportDays {
			return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidInput, maxReportDays)
		}
		totals[s.Clock.LocalDateKey(d)] = 0
	}

	events, err := repo.ListEventsOverlapping(ctx, s.DB, userID, lo, hi)
	if err != nil {
		return nil, err
	}
	intervals := make([]spans.Interval, 0, len(events))
	for _, ev := range events {
		iv := spans.Interval{Start: ev.StartAt, End: ev.EndAt}
		if iv.Start.Before(lo) {
			iv.Start = lo
		}
		if iv.End.After(hi) {
			iv.End = hi
		}
		intervals = append(intervals, iv)
	}
	for day, h := range spans.HoursByDay(s.Clock, intervals...) {
		totals[day] += h
	}
	return spans.Sorted(totals), nil
}
