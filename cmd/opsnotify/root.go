package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
	"github.com/tbourn/go-ops-notify/internal/config"
	"github.com/tbourn/go-ops-notify/internal/lock"
	"github.com/tbourn/go-ops-notify/internal/push"
	"github.com/tbourn/go-ops-notify/internal/repo"
	"github.com/tbourn/go-ops-notify/internal/services"
	"github.com/tbourn/go-ops-notify/internal/sysutil"
)

// Version information (set at build time via ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// loadConfig is swapped in tests.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opsnotify",
		Short:         "Calendar reminders and web push delivery for site operations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newSweepCmd(), newSplitCmd(), newVersionCmd())
	return root
}

// app is the wired dependency graph shared by serve and sweep.
type app struct {
	cfg        config.Config
	log        zerolog.Logger
	db         *gorm.DB
	clock      *civiltime.Clock
	dispatcher *services.Dispatcher
	closers    []func() error
}

// bootstrap loads configuration, sets up logging, opens and migrates the
// database, and builds the dispatcher with its push sender and sweep lock.
func bootstrap(ctx context.Context, stderr io.Writer, component string) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	logger := sysutil.NewLogger(stderr, cfg.LogPretty, component)
	log.Logger = logger

	clock, err := civiltime.Load(cfg.CivilTZ)
	if err != nil {
		return nil, fmt.Errorf("civil timezone: %w", err)
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DB.Driver, err)
	}
	a := &app{cfg: cfg, log: logger, db: db, clock: clock}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	if err := repo.AutoMigrate(db); err != nil {
		a.close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	d := &services.Dispatcher{
		DB:          db,
		Clock:       clock,
		Cfg:         cfg.Dispatch,
		PushTimeout: cfg.Push.Timeout,
		AppURL:      sysutil.FirstNonEmpty(cfg.AppURL, "http://localhost:"+cfg.Port),
		Log:         logger,
	}

	switch wp, err := push.NewWebPush(cfg.Push); {
	case errors.Is(err, push.ErrNotConfigured):
		logger.Warn().Msg("VAPID keys not set; push sweeps are skipped and reminders stay pending")
	case err != nil:
		a.close()
		return nil, fmt.Errorf("push sender: %w", err)
	default:
		d.Sender = wp
	}

	if cfg.Redis.Enabled() {
		rl := lock.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := rl.Ping(ctx); err != nil {
			// the sweep still runs unlocked; row claims prevent double delivery
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable; sweep lock disabled")
			_ = rl.Close()
			d.Locker = lock.Noop{}
		} else {
			d.Locker = rl
			a.closers = append(a.closers, rl.Close)
		}
	} else {
		d.Locker = lock.Noop{}
	}

	a.dispatcher = d
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
