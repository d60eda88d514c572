package civiltime

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eastern(t *testing.T) *Clock {
	t.Helper()
	c, err := Load("America/New_York")
	require.NoError(t, err)
	return c
}

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLoad_UnknownZone(t *testing.T) {
	_, err := Load("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestNew_NilLocationIsUTC(t *testing.T) {
	c := New(nil)
	assert.Equal(t, time.UTC, c.Location())
}

func TestLocalCivilToUTC(t *testing.T) {
	c := eastern(t)

	cases := []struct {
		in   string
		want string
	}{
		{"2025-07-01T09:30", "2025-07-01T13:30:00Z"},       // EDT
		{"2025-12-01T09:30", "2025-12-01T14:30:00Z"},       // EST
		{"2025-11-05 09:30:15", "2025-11-05T14:30:15Z"},    // space separator
		{"2025-11-05T09:30:15.250", "2025-11-05T14:30:15.25Z"},
		{"  2025-11-05T00:00  ", "2025-11-05T05:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := c.LocalCivilToUTC(tc.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(utc(tc.want)), "got %s want %s", got, tc.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestLocalCivilToUTC_Invalid(t *testing.T) {
	c := eastern(t)
	for _, in := range []string{"", "nope", "2025-13-01T10:00", "2025-11-05", "2025-11-05T25:00"} {
		_, err := c.LocalCivilToUTC(in)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", in)
	}
}

func TestLocalCivilToUTC_RoundTripAcrossDST(t *testing.T) {
	c := eastern(t)
	windows := []string{"2025-03-08", "2025-03-09", "2025-03-10", "2025-11-01", "2025-11-02", "2025-11-03"}
	for _, day := range windows {
		for h := 0; h < 24; h++ {
			if day == "2025-03-09" && h == 2 {
				continue // 02:xx does not exist on spring-forward day
			}
			in := fmt.Sprintf("%sT%02d:30", day, h)
			got, err := c.LocalCivilToUTC(in)
			require.NoError(t, err)
			assert.Equal(t, in, got.In(c.Location()).Format("2006-01-02T15:04"))
		}
	}
}

func TestLocalCivilToUTC_TwentyFourLocalHoursApart(t *testing.T) {
	c := eastern(t)
	cases := []struct {
		a, b string
		want time.Duration
	}{
		{"2025-03-08T09:30", "2025-03-09T09:30", 23 * time.Hour},
		{"2025-06-10T09:30", "2025-06-11T09:30", 24 * time.Hour},
		{"2025-11-01T09:30", "2025-11-02T09:30", 25 * time.Hour},
	}
	for _, tc := range cases {
		a, err := c.LocalCivilToUTC(tc.a)
		require.NoError(t, err)
		b, err := c.LocalCivilToUTC(tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, b.Sub(a), "%s -> %s", tc.a, tc.b)
	}
}

func TestAnchorAllDayAtLocalHour(t *testing.T) {
	c := eastern(t)

	got, err := c.AnchorAllDayAtLocalHour("2025-11-05", 9)
	require.NoError(t, err)
	assert.Equal(t, "2025-11-05T14:00:00.000Z", got.Format("2006-01-02T15:04:05.000Z"))

	got, err = c.AnchorAllDayAtLocalHour("2025-07-04", 9)
	require.NoError(t, err)
	assert.True(t, got.Equal(utc("2025-07-04T13:00:00Z")))

	_, err = c.AnchorAllDayAtLocalHour("2025-11-05", 24)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.AnchorAllDayAtLocalHour("11/05/2025", 9)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStartOfLocalDayUTC(t *testing.T) {
	c := eastern(t)

	got, err := c.StartOfLocalDayUTC("2025-03-09")
	require.NoError(t, err)
	assert.True(t, got.Equal(utc("2025-03-09T05:00:00Z")))

	got, err = c.StartOfLocalDayUTC("2025-03-10")
	require.NoError(t, err)
	assert.True(t, got.Equal(utc("2025-03-10T04:00:00Z")))

	_, err = c.StartOfLocalDayUTC("2025-02-30")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddLocalDays(t *testing.T) {
	c := eastern(t)

	start := utc("2025-03-08T14:30:00Z") // 09:30 EST
	next := c.AddLocalDays(start, 1)
	assert.True(t, next.Equal(utc("2025-03-09T13:30:00Z")))
	assert.Equal(t, 23*time.Hour, next.Sub(start))

	back := c.AddLocalDays(next, -1)
	assert.True(t, back.Equal(start))

	assert.True(t, c.AddLocalDays(start, 0).Equal(start))
}

func TestLocalDateKey_And_DayBounds(t *testing.T) {
	c := eastern(t)

	// 03:00Z on Nov 6 is still Nov 5 in New York.
	assert.Equal(t, "2025-11-05", c.LocalDateKey(utc("2025-11-06T03:00:00Z")))

	s, e := c.DayBounds(utc("2025-03-09T12:00:00Z"))
	assert.True(t, s.Equal(utc("2025-03-09T05:00:00Z")))
	assert.True(t, e.Equal(utc("2025-03-10T04:00:00Z")))
	assert.Equal(t, 23*time.Hour, e.Sub(s))

	s, e = c.DayBounds(utc("2025-11-02T12:00:00Z"))
	assert.Equal(t, 25*time.Hour, e.Sub(s))
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2025-11-05 ")
	require.NoError(t, err)
	assert.Equal(t, "2025-11-05", got)

	_, err = ParseDate("2025-11-5")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
