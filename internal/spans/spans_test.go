package spans

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
)

func eastern(t *testing.T) *civiltime.Clock {
	t.Helper()
	c, err := civiltime.Load("America/New_York")
	require.NoError(t, err)
	return c
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSplit_EmptyForNonPositiveDuration(t *testing.T) {
	c := eastern(t)
	ts := at("2025-11-05T14:00:00Z")
	assert.Empty(t, Collect(SplitIntoLocalDaySegments(c, ts, ts)))
	assert.Empty(t, Collect(SplitIntoLocalDaySegments(c, ts, ts.Add(-time.Hour))))
}

func TestSplit_SingleDay(t *testing.T) {
	c := eastern(t)
	segs := Collect(SplitIntoLocalDaySegments(c, at("2025-11-05T14:00:00Z"), at("2025-11-05T16:30:00Z")))
	require.Len(t, segs, 1)
	assert.Equal(t, "2025-11-05", segs[0].Day)
	assert.Equal(t, 2.5, segs[0].Hours)
}

func TestSplit_CrossesLocalMidnight(t *testing.T) {
	c := eastern(t)
	// 22:00 EST Nov 5 -> 02:00 EST Nov 6
	segs := Collect(SplitIntoLocalDaySegments(c, at("2025-11-06T03:00:00Z"), at("2025-11-06T07:00:00Z")))
	require.Len(t, segs, 2)
	assert.Equal(t, "2025-11-05", segs[0].Day)
	assert.Equal(t, 2.0, segs[0].Hours)
	assert.Equal(t, "2025-11-06", segs[1].Day)
	assert.Equal(t, 2.0, segs[1].Hours)
	assert.True(t, segs[0].End.Equal(segs[1].Start))
	assert.True(t, segs[1].Start.Equal(at("2025-11-06T05:00:00Z")))
}

func TestSplit_ShortDSTDay(t *testing.T) {
	c := eastern(t)
	// full local days Mar 8..Mar 10 (spring forward on Mar 9)
	start, err := c.StartOfLocalDayUTC("2025-03-08")
	require.NoError(t, err)
	end, err := c.StartOfLocalDayUTC("2025-03-11")
	require.NoError(t, err)

	segs := Collect(SplitIntoLocalDaySegments(c, start, end))
	require.Len(t, segs, 3)
	assert.Equal(t, []float64{24, 23, 24}, []float64{segs[0].Hours, segs[1].Hours, segs[2].Hours})
	assert.Equal(t, "2025-03-09", segs[1].Day)
}

func TestSplit_EarlyBreakStopsIteration(t *testing.T) {
	c := eastern(t)
	seq := SplitIntoLocalDaySegments(c, at("2025-11-01T12:00:00Z"), at("2025-11-10T12:00:00Z"))
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
	// restartable: a fresh range sees the whole sequence again
	assert.Len(t, Collect(seq), 10)
}

func TestSplit_SubMillisecondInstantsKeepTotal(t *testing.T) {
	c := eastern(t)
	start := at("2025-03-07T20:00:00.0005Z")
	end := start.Add(72 * time.Hour).Add(-time.Microsecond)

	var sum float64
	for s := range SplitIntoLocalDaySegments(c, start, end) {
		sum += s.Hours
	}
	assert.InDelta(t, end.Sub(start).Hours(), sum, 1e-9)
}

func TestSplit_Properties(t *testing.T) {
	c := eastern(t)
	r := rand.New(rand.NewSource(42))
	base := at("2025-01-01T00:00:00Z")

	for i := 0; i < 500; i++ {
		start := base.Add(time.Duration(r.Int63n(int64(365 * 24 * time.Hour))))
		end := start.Add(time.Duration(1 + r.Int63n(int64(20*24*time.Hour))))

		segs := Collect(SplitIntoLocalDaySegments(c, start, end))
		require.NotEmpty(t, segs)

		var sum float64
		days := map[string]bool{}
		for j, s := range segs {
			sum += s.Hours
			days[s.Day] = true
			assert.True(t, s.End.After(s.Start))
			assert.Equal(t, s.Day, c.LocalDateKey(s.Start))
			if j > 0 {
				assert.True(t, segs[j-1].End.Equal(s.Start), "segments must be contiguous")
			}
		}
		assert.True(t, segs[0].Start.Equal(start))
		assert.True(t, segs[len(segs)-1].End.Equal(end))

		want := end.Sub(start).Hours()
		assert.LessOrEqual(t, math.Abs(sum-want), 1e-9)

		// distinct local days touched by [start, end)
		touched := map[string]bool{}
		for d := c.LocalDateKey(start); ; {
			touched[d] = true
			if d == c.LocalDateKey(end.Add(-time.Nanosecond)) {
				break
			}
			ds, _ := c.StartOfLocalDayUTC(d)
			d = c.LocalDateKey(c.AddLocalDays(ds, 1))
		}
		assert.Equal(t, len(touched), len(segs))
		assert.Equal(t, len(days), len(segs))
	}
}

func TestHoursByDay_And_Sorted(t *testing.T) {
	c := eastern(t)
	m := HoursByDay(c,
		Interval{Start: at("2025-11-05T14:00:00Z"), End: at("2025-11-05T16:00:00Z")},
		Interval{Start: at("2025-11-06T03:00:00Z"), End: at("2025-11-06T07:00:00Z")},
		Interval{Start: at("2025-11-06T07:00:00Z"), End: at("2025-11-06T06:00:00Z")}, // ignored
	)
	assert.Equal(t, map[string]float64{"2025-11-05": 4, "2025-11-06": 2}, m)

	rows := Sorted(m)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-11-05", rows[0].Day)
	assert.Equal(t, "2025-11-06", rows[1].Day)
}
