// Package spans splits UTC intervals into per-local-day segments for daily
// hour reporting.
package spans

import (
	"iter"
	"sort"
	"time"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
)

// Segment is the part of an interval that falls on one local calendar day.
type Segment struct {
	Day   string    `json:"day"`   // local date key, YYYY-MM-DD
	Start time.Time `json:"start"` // UTC
	End   time.Time `json:"end"`   // UTC
	Hours float64   `json:"hours"`
}

// SplitIntoLocalDaySegments returns the local-day segments of [start, end) in
// chronological order. The sequence is recomputed on every iteration. It is
// empty when end is not after start.
func SplitIntoLocalDaySegments(c *civiltime.Clock, start, end time.Time) iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		if !end.After(start) {
			return
		}
		cursor := start.UTC()
		end = end.UTC()
		for cursor.Before(end) {
			_, dayEnd := c.DayBounds(cursor)
			segEnd := dayEnd
			if segEnd.After(end) {
				segEnd = end
			}
			if segEnd.After(cursor) {
				seg := Segment{
					Day:   c.LocalDateKey(cursor),
					Start: cursor,
					End:   segEnd,
					Hours: segEnd.Sub(cursor).Hours(),
				}
				if !yield(seg) {
					return
				}
			}
			cursor = segEnd
		}
	}
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq[Segment]) []Segment {
	out := []Segment{}
	for s := range seq {
		out = append(out, s)
	}
	return out
}

// Interval is a UTC time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// HoursByDay sums the hours of every interval per local day.
func HoursByDay(c *civiltime.Clock, intervals ...Interval) map[string]float64 {
	out := make(map[string]float64)
	for _, iv := range intervals {
		for s := range SplitIntoLocalDaySegments(c, iv.Start, iv.End) {
			out[s.Day] += s.Hours
		}
	}
	return out
}

// DayTotal is one row of a daily hours report.
type DayTotal struct {
	Day   string  `json:"day"`
	Hours float64 `json:"hours"`
}

// Sorted returns the totals ordered by day.
func Sorted(m map[string]float64) []DayTotal {
	out := make([]DayTotal, 0, len(m))
	for d, h := range m {
		out = append(out, DayTotal{Day: d, Hours: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
