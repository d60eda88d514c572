// Package services – ReminderService
//
// ReminderService owns the reminder state machine: scheduling rows for an
// event or to-do, and the user-driven snooze and acknowledge transitions.
// Delivery lives in Dispatcher.
//
// Scheduling locks the entity row and replaces its pending rows inside one
// transaction, so repeated or concurrent calls for the same entity never
// accumulate duplicates.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/domain"
	"github.com/tbourn/go-ops-notify/internal/repo"
	"github.com/tbourn/go-ops-notify/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxSnoozeMinutes caps a single snooze at one year.
const maxSnoozeMinutes = 366 * 24 * 60

// reminderChannels are the rows created for every fire time.
var reminderChannels = []string{domain.ChannelPush, domain.ChannelInApp}

// ReminderService schedules and transitions reminders.
type ReminderService struct {
	DB  *gorm.DB
	Log zerolog.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewReminderService constructs a ReminderService using the wall clock.
func NewReminderService(db *gorm.DB, log zerolog.Logger) *ReminderService {
	return &ReminderService{DB: db, Log: log}
}

func (s *ReminderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ScheduleForEntity replaces the pending reminders of an entity with one push
// and one in-app row per fire time computed from anchor and offsets. Fire
// times already in the past, or already delivered for the same offset, are
// skipped. The created rows are returned earliest first.
func (s *ReminderService) ScheduleForEntity(ctx context.Context, userID, entityType, entityID string, anchor time.Time, offsets []int) ([]domain.Reminder, error) {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "ScheduleForEntity",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("entity.type", entityType),
			attribute.String("entity.id", entityID),
			attribute.Int("offsets", len(offsets)),
		),
	)
	defer span.End()

	var out []domain.Reminder
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.scheduleTx(ctx, tx, userID, entityType, entityID, anchor, offsets)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scheduleTx is ScheduleForEntity on a caller-owned transaction, so entity
// writes and their reminders commit together.
func (s *ReminderService) scheduleTx(ctx context.Context, tx *gorm.DB, userID, entityType, entityID string, anchor time.Time, offsets []int) ([]domain.Reminder, error) {
	if entityType != domain.EntityEvent && entityType != domain.EntityTodo {
		return nil, fmt.Errorf("%w: entity type %q", ErrInvalidInput, entityType)
	}
	if err := repo.LockEntity(ctx, tx, entityType, entityID); err != nil {
		return nil, err
	}
	if _, err := repo.DeletePendingReminders(ctx, tx, entityType, entityID); err != nil {
		return nil, err
	}

	now := s.now()
	rows := make([]domain.Reminder, 0, 2*len(offsets))
	for _, ft := range computeFireTimes(anchor, offsets) {
		if ft.At.Before(now) {
			continue
		}
		for _, ch := range reminderChannels {
			sent, err := repo.SentReminderExists(ctx, tx, entityType, entityID, ch, ft.Offset, ft.At)
			if err != nil {
				return nil, err
			}
			if sent {
				continue
			}
			rows = append(rows, domain.Reminder{
				ID:            uuid.NewString(),
				UserID:        userID,
				EntityType:    entityType,
				EntityID:      entityID,
				Channel:       ch,
				OffsetMinutes: ft.Offset,
				FireAt:        ft.At,
				Status:        domain.ReminderPending,
			})
		}
	}
	if err := repo.InsertReminders(ctx, tx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CancelForEntity removes an entity's pending reminders.
func (s *ReminderService) CancelForEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	return repo.DeletePendingReminders(ctx, s.DB, entityType, entityID)
}

// Snooze pushes an owned reminder's fire time forward by minutes (at most one
// year) and resets it to pending. It returns the new fire time.
func (s *ReminderService) Snooze(ctx context.Context, userID, id string, minutes float64) (time.Time, error) {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "Snooze",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("reminder.id", id),
			attribute.Float64("minutes", minutes),
		),
	)
	defer span.End()

	if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes <= 0 {
		return time.Time{}, fmt.Errorf("%w: snooze minutes must be positive", ErrInvalidInput)
	}
	if minutes > maxSnoozeMinutes {
		return time.Time{}, fmt.Errorf("%w: snooze minutes must not exceed %d", ErrInvalidInput, maxSnoozeMinutes)
	}

	r, err := repo.GetReminder(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return time.Time{}, ErrReminderNotFound
		}
		return time.Time{}, err
	}

	fireAt := r.FireAt.UTC().Add(time.Duration(minutes * float64(time.Minute)))
	if err := repo.SnoozeReminder(ctx, s.DB, id, userID, fireAt); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return time.Time{}, ErrReminderNotFound
		}
		return time.Time{}, err
	}
	return fireAt, nil
}

// Acknowledge marks an owned reminder sent without delivering it. Repeating
// the call is a no-op. The owning entity is stamped only on the first ack.
func (s *ReminderService) Acknowledge(ctx context.Context, userID, id string) error {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "Acknowledge",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("reminder.id", id),
		),
	)
	defer span.End()

	r, err := repo.GetReminder(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrReminderNotFound
		}
		return err
	}

	now := s.now()
	changed, err := repo.AckReminder(ctx, s.DB, id, userID, now)
	if err != nil {
		return err
	}
	if changed {
		if err := repo.MarkEntityNotified(ctx, s.DB, r.EntityType, r.EntityID, now); err != nil {
			s.Log.Warn().Err(err).Str("reminder_id", id).Msg("mark entity notified")
		}
	}
	return nil
}

// ListPage returns a page of the user's reminders, newest fire time first,
// optionally filtered by status.
func (s *ReminderService) ListPage(ctx context.Context, userID, status string, page, pageSize int) ([]domain.Reminder, int64, error) {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("status", status),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	switch status {
	case "", domain.ReminderPending, domain.ReminderInFlight, domain.ReminderSent:
	default:
		return nil, 0, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	offset := utils.Offset(page, pageSize)

	total, err := repo.CountReminders(ctx, s.DB, userID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Reminder{}, 0, nil
	}
	items, err := repo.ListRemindersPage(ctx, s.DB, userID, status, offset, pageSize)
	return items, total, err
}

// Stats returns the user's reminder count and latest update, used for ETags.
func (s *ReminderService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.RemindersStats(ctx, s.DB, userID)
}
