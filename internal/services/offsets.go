package services

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ComputeReminderTimes returns anchor minus each offset (in minutes), ordered
// chronologically. Negative and duplicate offsets are dropped.
func ComputeReminderTimes(anchor time.Time, offsets []int) []time.Time {
	fts := computeFireTimes(anchor, offsets)
	out := make([]time.Time, len(fts))
	for i, ft := range fts {
		out[i] = ft.At
	}
	return out
}

// fireTime pairs an offset with the instant it produces.
type fireTime struct {
	Offset int
	At     time.Time
}

func computeFireTimes(anchor time.Time, offsets []int) []fireTime {
	seen := make(map[int]struct{}, len(offsets))
	out := make([]fireTime, 0, len(offsets))
	for _, o := range offsets {
		if o < 0 {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, fireTime{Offset: o, At: anchor.UTC().Add(-time.Duration(o) * time.Minute)})
	}
	// earliest first == largest offset first
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// NormalizeOffsets converts client-supplied offsets to whole minutes. Values
// that are negative, non-finite, or not numeric are dropped and logged at
// warn; the rest of the batch is kept. Fractional minutes are rounded.
// The result is deduplicated and sorted ascending.
func NormalizeOffsets(log zerolog.Logger, raw []any) []int {
	seen := make(map[int]struct{}, len(raw))
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
			log.Warn().Interface("offset", v).Msg("dropping invalid reminder offset")
			continue
		}
		m := int(math.Round(f))
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// formatOffsets stores offsets as a CSV column value.
func formatOffsets(offsets []int) string {
	parts := make([]string, len(offsets))
	for i, o := range offsets {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}
