// Package services – Dispatcher
//
// Dispatcher runs the two delivery sweeps: due push reminders and the generic
// push outbox. Each sweep selects a bounded batch, claims rows one by one with
// a conditional update, and delivers claimed rows concurrently up to
// Cfg.Concurrency. Per-item failures never abort a sweep; only a failed
// select does. Once a batch is selected it runs to completion even if ctx is
// cancelled, so a delivered row is always settled; each push is bounded by
// PushTimeout instead.
//
// Retry policy differs per queue. A reminder that fails to deliver goes back
// to pending and is retried on every later sweep. An outbox message is retried
// until its attempt count reaches Cfg.OutboxMaxAttempts and is then failed.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
	"github.com/tbourn/go-ops-notify/internal/config"
	"github.com/tbourn/go-ops-notify/internal/domain"
	"github.com/tbourn/go-ops-notify/internal/lock"
	"github.com/tbourn/go-ops-notify/internal/push"
	"github.com/tbourn/go-ops-notify/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Skip reasons reported by a sweep that did not run.
const (
	SkipNotConfigured = "not_configured"
	SkipLocked        = "locked"
)

// SweepLockKey is the cross-process lock held for a full RunOnce.
const SweepLockKey = "opsnotify:sweep"

// SweepResult summarizes one queue's sweep. Processed counts every claimed
// row, delivered or not. Exhausted counts outbox rows that became failed.
type SweepResult struct {
	Queue      string `json:"queue"`
	Processed  int    `json:"processed"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Exhausted  int    `json:"exhausted,omitempty"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// SweepReport is the result of RunOnce.
type SweepReport struct {
	Reminders SweepResult `json:"reminders"`
	Outbox    SweepResult `json:"outbox"`
}

// Dispatcher delivers due reminders and outbox messages.
type Dispatcher struct {
	DB *gorm.DB
	// Sender delivers pushes; nil means push is not configured.
	Sender push.Sender
	// Locker guards RunOnce across processes; nil means no lock.
	Locker lock.Locker
	Clock  *civiltime.Clock
	Cfg    config.DispatchConfig
	// PushTimeout bounds each delivery attempt.
	PushTimeout time.Duration
	// AppURL prefixes the deep links put in notifications.
	AppURL string
	Log    zerolog.Logger
	Now    func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) pushTimeout() time.Duration {
	if d.PushTimeout > 0 {
		return d.PushTimeout
	}
	return 10 * time.Second
}

func (d *Dispatcher) concurrency() int {
	if d.Cfg.Concurrency > 0 {
		return d.Cfg.Concurrency
	}
	return 1
}

func orDefault(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

// RunOnce runs the reminder sweep and then the outbox sweep under the sweep
// lock. A lock held elsewhere skips both with reason "locked". A lock backend
// error is logged and the sweep proceeds, since row claims still prevent
// double delivery.
func (d *Dispatcher) RunOnce(ctx context.Context) (SweepReport, error) {
	if d.Locker != nil {
		ttl := d.Cfg.LockTTL
		if ttl <= 0 {
			ttl = 2 * time.Minute
		}
		release, ok, err := d.Locker.Acquire(ctx, SweepLockKey, ttl)
		switch {
		case err != nil:
			d.Log.Warn().Err(err).Msg("sweep lock unavailable, continuing without it")
		case !ok:
			return SweepReport{
				Reminders: SweepResult{Queue: "reminders", Skipped: true, SkipReason: SkipLocked},
				Outbox:    SweepResult{Queue: "outbox", Skipped: true, SkipReason: SkipLocked},
			}, nil
		}
		defer release()
	}

	var rep SweepReport
	var err error
	if rep.Reminders, err = d.SweepReminders(ctx); err != nil {
		return rep, err
	}
	if rep.Outbox, err = d.SweepOutbox(ctx); err != nil {
		return rep, err
	}
	return rep, nil
}

// SweepReminders delivers due push reminders, earliest fire time first.
func (d *Dispatcher) SweepReminders(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Queue: "reminders"}
	if d.Sender == nil {
		res.Skipped, res.SkipReason = true, SkipNotConfigured
		return res, nil
	}

	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "SweepReminders")
	defer span.End()
	start := time.Now()
	defer func() { sweepDuration.WithLabelValues("reminders").Observe(time.Since(start).Seconds()) }()

	now := d.now()
	staleBefore := now.Add(-d.Cfg.ClaimTimeout)
	rows, err := repo.SelectDueReminders(ctx, d.DB, now, staleBefore, orDefault(d.Cfg.ReminderBatch, 200))
	if err != nil {
		return res, fmt.Errorf("select due reminders: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(d.concurrency())
	for _, r := range rows {
		g.Go(func() error {
			ok, err := repo.ClaimReminder(gctx, d.DB, r.ID, d.now(), staleBefore)
			if err != nil || !ok {
				if err != nil {
					d.Log.Error().Err(err).Str("reminder_id", r.ID).Msg("claim reminder")
				}
				reminderDispatchTotal.WithLabelValues("lost").Inc()
				return nil
			}
			sent := d.deliverReminder(gctx, r)
			mu.Lock()
			res.Processed++
			if sent {
				res.Sent++
			} else {
				res.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("processed", res.Processed),
		attribute.Int("sent", res.Sent),
		attribute.Int("failed", res.Failed),
	)
	if res.Processed > 0 {
		d.Log.Info().Int("processed", res.Processed).Int("sent", res.Sent).Int("failed", res.Failed).Msg("reminder sweep")
	}
	return res, nil
}

// deliverReminder sends a claimed reminder to every subscription of its
// owner and settles the claim. It reports whether the reminder was sent.
//
// The reminder counts as sent when at least one delivery succeeded or when
// the owner has no live subscription left; otherwise it is released.
func (d *Dispatcher) deliverReminder(ctx context.Context, r domain.Reminder) bool {
	log := d.Log.With().Str("reminder_id", r.ID).Str("user_id", r.UserID).Logger()

	subs, err := repo.ListSubscriptions(ctx, d.DB, r.UserID)
	if err != nil {
		log.Error().Err(err).Msg("list subscriptions")
		d.releaseReminder(ctx, log, r.ID)
		return false
	}

	payload, err := d.reminderNotification(ctx, r).Encode()
	if err != nil {
		log.Error().Err(err).Msg("encode notification")
		d.releaseReminder(ctx, log, r.ID)
		return false
	}

	delivered, live := 0, 0
	for _, s := range subs {
		err := d.send(ctx, push.Subscription{Endpoint: s.Endpoint, P256dh: s.P256dh, Auth: s.Auth}, payload)
		switch {
		case err == nil:
			delivered++
		case push.IsGone(err):
			d.prune(ctx, log, s.Endpoint)
		default:
			live++
			log.Warn().Err(err).Str("subscription_id", s.ID).Msg("push delivery failed")
		}
	}

	if delivered == 0 && live > 0 {
		reminderDispatchTotal.WithLabelValues("failed").Inc()
		d.releaseReminder(ctx, log, r.ID)
		return false
	}

	now := d.now()
	if err := repo.CompleteReminder(ctx, d.DB, r.ID, now); err != nil {
		// claim expired and was taken by another sweep
		log.Error().Err(err).Msg("complete reminder")
		reminderDispatchTotal.WithLabelValues("failed").Inc()
		return false
	}
	if err := repo.MarkEntityNotified(ctx, d.DB, r.EntityType, r.EntityID, now); err != nil {
		log.Warn().Err(err).Msg("mark entity notified")
	}
	reminderDispatchTotal.WithLabelValues("sent").Inc()
	return true
}

func (d *Dispatcher) releaseReminder(ctx context.Context, log zerolog.Logger, id string) {
	if err := repo.ReleaseReminder(ctx, d.DB, id); err != nil {
		log.Error().Err(err).Msg("release reminder")
	}
}

// SweepOutbox delivers pending push outbox messages, oldest first.
func (d *Dispatcher) SweepOutbox(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Queue: "outbox"}
	if d.Sender == nil {
		res.Skipped, res.SkipReason = true, SkipNotConfigured
		return res, nil
	}

	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "SweepOutbox")
	defer span.End()
	start := time.Now()
	defer func() { sweepDuration.WithLabelValues("outbox").Observe(time.Since(start).Seconds()) }()

	now := d.now()
	staleBefore := now.Add(-d.Cfg.ClaimTimeout)
	maxAttempts := orDefault(d.Cfg.OutboxMaxAttempts, 5)
	rows, err := repo.SelectPendingOutbox(ctx, d.DB, domain.OutboxTypePush, staleBefore, orDefault(d.Cfg.OutboxBatch, 50))
	if err != nil {
		return res, fmt.Errorf("select pending outbox: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(d.concurrency())
	for _, m := range rows {
		g.Go(func() error {
			ok, err := repo.ClaimOutbox(gctx, d.DB, m.ID, d.now(), staleBefore)
			if err != nil || !ok {
				if err != nil {
					d.Log.Error().Err(err).Str("outbox_id", m.ID).Msg("claim outbox")
				}
				outboxDispatchTotal.WithLabelValues("lost").Inc()
				return nil
			}
			sent, exhausted := d.deliverOutbox(gctx, m, maxAttempts)
			mu.Lock()
			res.Processed++
			switch {
			case sent:
				res.Sent++
			case exhausted:
				res.Failed++
				res.Exhausted++
			default:
				res.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if counts, err := repo.CountOutboxByStatus(ctx, d.DB); err == nil {
		for _, st := range []string{domain.OutboxPending, domain.OutboxInFlight, domain.OutboxSent, domain.OutboxFailed} {
			outboxDepth.WithLabelValues(st).Set(float64(counts[st]))
		}
	}

	span.SetAttributes(
		attribute.Int("processed", res.Processed),
		attribute.Int("sent", res.Sent),
		attribute.Int("failed", res.Failed),
	)
	if res.Processed > 0 {
		d.Log.Info().Int("processed", res.Processed).Int("sent", res.Sent).Int("failed", res.Failed).
			Int("exhausted", res.Exhausted).Msg("outbox sweep")
	}
	return res, nil
}

// deliverOutbox sends one claimed message and records the outcome. A payload
// that cannot be decoded is failed at once since retrying cannot fix it.
func (d *Dispatcher) deliverOutbox(ctx context.Context, m domain.OutboxMessage, maxAttempts int) (sent, exhausted bool) {
	log := d.Log.With().Str("outbox_id", m.ID).Logger()

	var env domain.PushEnvelope
	if err := json.Unmarshal([]byte(m.Payload), &env); err != nil || strings.TrimSpace(env.Endpoint) == "" {
		if err == nil {
			err = errors.New("missing endpoint")
		}
		log.Error().Err(err).Msg("malformed outbox payload")
		if ferr := repo.MarkOutboxFailure(ctx, d.DB, m.ID, "malformed payload: "+err.Error(), 1); ferr != nil {
			log.Error().Err(ferr).Msg("mark outbox failure")
		}
		outboxDispatchTotal.WithLabelValues("failed").Inc()
		return false, true
	}

	err := d.send(ctx, push.Subscription{Endpoint: env.Endpoint, P256dh: env.P256dh, Auth: env.Auth}, env.Body)
	if err == nil {
		if err := repo.MarkOutboxSent(ctx, d.DB, m.ID, d.now()); err != nil {
			log.Error().Err(err).Msg("mark outbox sent")
		}
		outboxDispatchTotal.WithLabelValues("sent").Inc()
		return true, false
	}

	if push.IsGone(err) {
		d.prune(ctx, log, env.Endpoint)
	}
	exhausted = m.Attempts+1 >= maxAttempts
	log.Warn().Err(err).Int("attempt", m.Attempts+1).Bool("exhausted", exhausted).Msg("outbox delivery failed")
	if ferr := repo.MarkOutboxFailure(ctx, d.DB, m.ID, err.Error(), maxAttempts); ferr != nil {
		log.Error().Err(ferr).Msg("mark outbox failure")
	}
	if exhausted {
		outboxDispatchTotal.WithLabelValues("failed").Inc()
	} else {
		outboxDispatchTotal.WithLabelValues("retry").Inc()
	}
	return false, exhausted
}

func (d *Dispatcher) send(ctx context.Context, sub push.Subscription, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.pushTimeout())
	defer cancel()
	return d.Sender.Send(ctx, sub, payload)
}

func (d *Dispatcher) prune(ctx context.Context, log zerolog.Logger, endpoint string) {
	if err := repo.DeleteSubscriptionByEndpoint(ctx, d.DB, endpoint); err != nil {
		log.Error().Err(err).Msg("prune subscription")
		return
	}
	subscriptionsPruned.Inc()
	log.Info().Msg("pruned gone push subscription")
}

// reminderNotification builds the push body for a reminder. The data block
// carries what a service worker needs to call snooze or ack.
func (d *Dispatcher) reminderNotification(ctx context.Context, r domain.Reminder) push.Notification {
	subject, when, path := d.describeEntity(ctx, r)

	body := subject
	if !when.IsZero() {
		loc := time.UTC
		if d.Clock != nil {
			loc = d.Clock.Location()
		}
		body = fmt.Sprintf("%s at %s", subject, when.In(loc).Format("Mon Jan 2, 3:04 PM"))
	}

	return push.Notification{
		// a Caser keeps state, so one per call
		Title: cases.Title(language.English).String(r.EntityType) + " reminder",
		Body:  body,
		URL:   strings.TrimRight(d.AppURL, "/") + path,
		Tag:   "reminder-" + r.ID,
		Actions: []push.Action{
			{Action: "snooze", Title: "Snooze 10m"},
			{Action: "open", Title: "Open"},
		},
		Data: map[string]string{
			"reminder_id": r.ID,
			"entity_type": r.EntityType,
			"entity_id":   r.EntityID,
		},
	}
}

// describeEntity returns the entity title, its anchor instant (zero for an
// all-day to-do), and its deep link path. A deleted entity yields a generic
// subject.
func (d *Dispatcher) describeEntity(ctx context.Context, r domain.Reminder) (string, time.Time, string) {
	switch r.EntityType {
	case domain.EntityEvent:
		path := "/events/" + r.EntityID
		ev, err := repo.GetEvent(ctx, d.DB, r.EntityID, r.UserID)
		if err != nil {
			return "Upcoming event", time.Time{}, path
		}
		if ev.AllDay {
			return ev.Title + " (all day)", time.Time{}, path
		}
		return ev.Title, ev.StartAt, path
	case domain.EntityTodo:
		path := "/todos/" + r.EntityID
		td, err := repo.GetTodo(ctx, d.DB, r.EntityID, r.UserID)
		if err != nil {
			return "To-do due", time.Time{}, path
		}
		if td.DueAt != nil {
			return td.Title, *td.DueAt, path
		}
		return td.Title + " (due " + td.DueDate + ")", time.Time{}, path
	}
	return "Reminder", time.Time{}, "/"
}
