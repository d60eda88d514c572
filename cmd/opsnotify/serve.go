package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	httpapi "github.com/tbourn/go-ops-notify/internal/http"
	"github.com/tbourn/go-ops-notify/internal/observability"
	"github.com/tbourn/go-ops-notify/internal/schedule"
)

const shutdownGrace = 15 * time.Second

func newServeCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled dispatcher sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API only; sweeps run via POST /dispatch/sweep or `opsnotify sweep`")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, noScheduler bool) error {
	a, err := bootstrap(ctx, cmd.ErrOrStderr(), "server")
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	shutdownOTel, err := observability.Setup(ctx, cfg, Version, "server")
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			a.log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, a.db, a.clock, a.dispatcher, cfg)

	if !noScheduler {
		// a sweep must finish before its lock lease lapses
		runner, err := schedule.New(cfg.Dispatch.Schedule, a.dispatcher, a.log, cfg.Dispatch.LockTTL)
		if err != nil {
			return err
		}
		runner.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			runner.Stop(sctx)
		}()
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().
			Str("addr", srv.Addr).
			Str("base_path", cfg.APIBasePath).
			Str("civil_tz", cfg.CivilTZ).
			Bool("push", a.dispatcher.Sender != nil).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(sctx)
}
