package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-ops-notify/internal/services"
)

type sweepFunc func(ctx context.Context) (services.SweepReport, error)

func (f sweepFunc) RunOnce(ctx context.Context) (services.SweepReport, error) { return f(ctx) }

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("every now and then", sweepFunc(nil), zerolog.Nop(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sweep schedule")
}

func TestRunner_TicksAndRecordsErrors(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("db down")
	s := sweepFunc(func(ctx context.Context) (services.SweepReport, error) {
		if calls.Add(1) == 1 {
			return services.SweepReport{}, boom
		}
		return services.SweepReport{Reminders: services.SweepResult{Sent: 1}}, nil
	})

	var buf bytes.Buffer
	r, err := New("@every 1s", s, zerolog.New(&buf), time.Second)
	require.NoError(t, err)
	r.Start()
	defer r.Stop(context.Background())

	waitFor(t, 4*time.Second, func() bool { n, _ := r.Runs(); return n >= 1 })
	_, lastErr := r.Runs()
	if calls.Load() == 1 {
		assert.ErrorIs(t, lastErr, boom)
	}
	waitFor(t, 4*time.Second, func() bool { n, _ := r.Runs(); return n >= 2 })
	_, lastErr = r.Runs()
	assert.NoError(t, lastErr)
	assert.Contains(t, buf.String(), "scheduled sweep failed")
}

func TestRunner_StopWaitsForInFlightSweep(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var ctxErr atomic.Value
	s := sweepFunc(func(ctx context.Context) (services.SweepReport, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		ctxErr.Store(fmt.Sprint(ctx.Err()))
		return services.SweepReport{}, nil
	})

	r, err := New("@every 1s", s, zerolog.Nop(), 0)
	require.NoError(t, err)
	r.Start()

	select {
	case <-started:
	case <-time.After(4 * time.Second):
		t.Fatal("sweep never started")
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sweep was still running")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(4 * time.Second):
		t.Fatal("Stop did not return after the sweep finished")
	}
	assert.Equal(t, "<nil>", ctxErr.Load(), "sweep context must not be cancelled by Stop")
}

func TestRunner_StopGivesUpAtDeadline(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	s := sweepFunc(func(context.Context) (services.SweepReport, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return services.SweepReport{}, nil
	})

	var buf bytes.Buffer
	r, err := New("@every 1s", s, zerolog.New(&buf), 0)
	require.NoError(t, err)
	r.Start()

	select {
	case <-started:
	case <-time.After(4 * time.Second):
		t.Fatal("sweep never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Stop(ctx)
	assert.Contains(t, buf.String(), "sweep scheduler stop timed out")
}

func TestRunner_SweepTimeoutBoundsContext(t *testing.T) {
	deadlines := make(chan bool, 1)
	s := sweepFunc(func(ctx context.Context) (services.SweepReport, error) {
		_, ok := ctx.Deadline()
		select {
		case deadlines <- ok:
		default:
		}
		return services.SweepReport{}, nil
	})
	r, err := New("@every 1s", s, zerolog.Nop(), 30*time.Second)
	require.NoError(t, err)
	r.Start()
	defer r.Stop(context.Background())

	select {
	case ok := <-deadlines:
		assert.True(t, ok, "sweep context should carry a deadline")
	case <-time.After(4 * time.Second):
		t.Fatal("sweep never ran")
	}
}

func TestCronLogger_WritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{log: zerolog.New(&buf).Level(zerolog.DebugLevel)}
	l.Info("start", "entries", 1)
	l.Error(errors.New("panic"), "job failed", "entry", 2)
	out := buf.String()
	assert.Contains(t, out, "cron: start")
	assert.Contains(t, out, "cron: job failed")
	assert.Contains(t, out, `"entry":2`)
}
