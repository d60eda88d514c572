package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-ops-notify/internal/observability"
)

func newSweepCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Deliver due reminders and outbox messages once and print the report",
		Long: `Runs one reminder sweep followed by one outbox sweep, then prints the
report as JSON. Suitable for an external cron or a Kubernetes CronJob when the
API runs with --no-scheduler.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			a, err := bootstrap(ctx, cmd.ErrOrStderr(), "sweep")
			if err != nil {
				return err
			}
			defer a.close()

			shutdownOTel, err := observability.Setup(ctx, a.cfg, Version, "sweep")
			if err != nil {
				return err
			}
			defer func() { _ = shutdownOTel(context.Background()) }()

			rep, err := a.dispatcher.RunOnce(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "abort the sweep after this long (0 = no limit)")
	return cmd
}
