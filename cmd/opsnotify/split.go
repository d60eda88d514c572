package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
	"github.com/tbourn/go-ops-notify/internal/spans"
	"github.com/tbourn/go-ops-notify/internal/sysutil"
)

const defaultCivilTZ = "America/New_York"

func newSplitCmd() *cobra.Command {
	var (
		start, end, tz string
		asJSON         bool
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split an interval into per-local-day segments",
		Example: `  opsnotify split --start 2025-11-01T22:00 --end 2025-11-02T06:00
  opsnotify split --start 2025-03-09T00:00:00Z --end 2025-03-10T00:00:00Z --tz America/Chicago --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clock, err := civiltime.Load(sysutil.FirstNonEmpty(tz, os.Getenv("CIVIL_TZ"), defaultCivilTZ))
			if err != nil {
				return err
			}
			s, err := parseInstant(clock, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			e, err := parseInstant(clock, end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			segs := spans.Collect(spans.SplitIntoLocalDaySegments(clock, s, e))

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(segs)
			}
			var total float64
			for _, seg := range segs {
				total += seg.Hours
				fmt.Fprintf(out, "%s  %s → %s  %6.2fh\n",
					seg.Day,
					seg.Start.In(clock.Location()).Format("15:04"),
					seg.End.In(clock.Location()).Format("15:04"),
					seg.Hours)
			}
			_, err = fmt.Fprintf(out, "total %.2fh over %d day(s)\n", total, len(segs))
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&start, "start", "", "interval start: local YYYY-MM-DDTHH:MM or RFC3339")
	f.StringVar(&end, "end", "", "interval end: local YYYY-MM-DDTHH:MM or RFC3339")
	f.StringVar(&tz, "tz", "", "IANA zone (default $CIVIL_TZ or "+defaultCivilTZ+")")
	f.BoolVar(&asJSON, "json", false, "print segments as JSON")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// parseInstant accepts an RFC3339 instant or a local civil date-time.
func parseInstant(c *civiltime.Clock, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return c.LocalCivilToUTC(s)
}
