// Package schedule triggers periodic dispatcher sweeps inside the API
// process using robfig/cron.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-ops-notify/internal/services"
)

// Sweeper runs one reminder + outbox sweep.
type Sweeper interface {
	RunOnce(ctx context.Context) (services.SweepReport, error)
}

// Runner owns the cron loop. Overlapping ticks are skipped, so a slow sweep
// never runs concurrently with itself in this process; cross-process
// exclusion is the dispatcher's lock.
type Runner struct {
	cron    *cron.Cron
	sweeper Sweeper
	log     zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	lastErr error
	runs    int
}

// New builds a Runner that calls sweeper on spec (standard 5-field cron or a
// descriptor like "@every 1m"). Each sweep is bounded by timeout; zero means
// no bound.
func New(spec string, sweeper Sweeper, log zerolog.Logger, timeout time.Duration) (*Runner, error) {
	r := &Runner{sweeper: sweeper, log: log, timeout: timeout}

	cl := cronLogger{log: log}
	r.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := r.cron.AddFunc(spec, r.tick); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return r, nil
}

// Start begins scheduling in the background.
func (r *Runner) Start() {
	r.cron.Start()
	r.log.Info().Msg("sweep scheduler started")
}

// Stop halts scheduling and waits for an in-flight sweep to finish or for ctx
// to expire, whichever comes first. The sweep itself is not cancelled: rows it
// already claimed must be settled.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn().Msg("sweep scheduler stop timed out")
	}
}

// Runs reports how many ticks completed and the last sweep error.
func (r *Runner) Runs() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.lastErr
}

func (r *Runner) tick() {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	rep, err := r.sweeper.RunOnce(ctx)

	r.mu.Lock()
	r.runs++
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		r.log.Error().Err(err).Msg("scheduled sweep failed")
		return
	}
	r.log.Debug().
		Int("reminders_sent", rep.Reminders.Sent).
		Int("reminders_failed", rep.Reminders.Failed).
		Int("outbox_sent", rep.Outbox.Sent).
		Int("outbox_failed", rep.Outbox.Failed).
		Bool("skipped", rep.Reminders.Skipped && rep.Outbox.Skipped).
		Dur("took", time.Since(start)).
		Msg("scheduled sweep")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug().Fields(kv).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error().Err(err).Fields(kv).Msg("cron: " + msg)
}
