// Package civiltime converts between wall-clock times in a single configured
// civil time zone and UTC instants.
//
// Human-entered dates ("2025-11-05", "2025-11-05T09:30") carry no offset. They
// are always interpreted in the Clock's zone, never in the process's local
// zone, so every component sees the same instant for the same input. A Clock
// is immutable once built and safe for concurrent use.
package civiltime

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// ErrInvalidInput is returned when a date or date-time string cannot be parsed.
var ErrInvalidInput = errors.New("invalid date/time input")

// DateLayout is the layout of a local calendar date key.
const DateLayout = "2006-01-02"

// Accepted local date-time layouts. Fractional seconds are accepted by the
// seconds layouts.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Clock interprets civil dates and times in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a Clock for loc. A nil loc means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Load returns a Clock for the IANA zone name (e.g. "America/New_York").
func Load(name string) (*Clock, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("load civil zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Location returns the civil zone.
func (c *Clock) Location() *time.Location { return c.loc }

// LocalCivilToUTC interprets s as wall-clock time in the civil zone and
// returns the equivalent UTC instant. Wall times that fall inside a
// spring-forward gap are normalized forward the way time.Date does.
func (c *Clock) LocalCivilToUTC(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date-time %q", ErrInvalidInput, s)
}

// AnchorAllDayAtLocalHour returns the UTC instant of hour:00 local time on the
// given local date. All-day reminders fire relative to this instant.
func (c *Clock) AnchorAllDayAtLocalHour(date string, hour int) (time.Time, error) {
	if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("%w: hour %d", ErrInvalidInput, hour)
	}
	y, m, d, err := parseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, m, d, hour, 0, 0, 0, c.loc).UTC(), nil
}

// StartOfLocalDayUTC returns the UTC instant of local midnight on date.
func (c *Clock) StartOfLocalDayUTC(date string) (time.Time, error) {
	y, m, d, err := parseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc).UTC(), nil
}

// AddLocalDays adds n local calendar days to t, keeping the local wall-clock
// time. Across a DST change the UTC difference is 23 or 25 hours per day.
func (c *Clock) AddLocalDays(t time.Time, n int) time.Time {
	return t.In(c.loc).AddDate(0, 0, n).UTC()
}

// LocalDateKey returns the local calendar date containing t as "YYYY-MM-DD".
func (c *Clock) LocalDateKey(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

// DayBounds returns the UTC window [start, end) of the local calendar day
// containing t.
func (c *Clock) DayBounds(t time.Time) (start, end time.Time) {
	lt := t.In(c.loc)
	y, m, d := lt.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	end = time.Date(y, m, d+1, 0, 0, 0, 0, c.loc)
	return start.UTC(), end.UTC()
}

// ParseDate validates a "YYYY-MM-DD" local date and returns it normalized.
func ParseDate(s string) (string, error) {
	y, m, d, err := parseDate(s)
	if err != nil {
		return "", err
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(DateLayout), nil
}

func parseDate(s string) (int, time.Month, int, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: date %q", ErrInvalidInput, s)
	}
	y, m, d := t.Date()
	return y, m, d, nil
}
