// Package services – EventService
//
// EventService creates, edits, and deletes calendar events and keeps each
// event's reminders in step with it. Human-entered date-times are read as
// wall-clock time in the configured civil timezone; all-day events cover
// whole local days and anchor their reminders at a local hour.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
	"github.com/tbourn/go-ops-notify/internal/domain"
	"github.com/tbourn/go-ops-notify/internal/repo"
	"github.com/tbourn/go-ops-notify/internal/spans"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxTitleRunes = 255

// EventInput is the user-supplied shape of an event.
//
// Start and End are local civil date-times ("2025-11-05T09:30"), or local
// dates ("2025-11-05") when AllDay is set. An empty End means End = Start.
// ReminderOffsets are minutes before the anchor; invalid entries are dropped.
type EventInput struct {
	Title           string
	Start           string
	End             string
	AllDay          bool
	ReminderOffsets []any
}

// EventService manages calendar events.
type EventService struct {
	DB        *gorm.DB
	Reminders *ReminderService
	Clock     *civiltime.Clock
	// AllDayAnchorHour is the local hour all-day reminders fire relative to.
	AllDayAnchorHour int
}

// invalid wraps a parse failure so both sentinels match.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

func normalizeEntityTitle(title string) (string, error) {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return title, nil
}

// eventTimes resolves an input into UTC bounds, the reminder anchor, and the
// local date kept for all-day events.
func (s *EventService) eventTimes(in EventInput) (start, end, anchor time.Time, localDate string, err error) {
	if in.AllDay {
		startDate, err := civiltime.ParseDate(in.Start)
		if err != nil {
			return start, end, anchor, "", invalid(err)
		}
		endDate := startDate
		if strings.TrimSpace(in.End) != "" {
			if endDate, err = civiltime.ParseDate(in.End); err != nil {
				return start, end, anchor, "", invalid(err)
			}
		}
		if endDate < startDate {
			return start, end, anchor, "", fmt.Errorf("%w: end date before start date", ErrInvalidInput)
		}
		if start, err = s.Clock.StartOfLocalDayUTC(startDate); err != nil {
			return start, end, anchor, "", invalid(err)
		}
		lastDay, err := s.Clock.StartOfLocalDayUTC(endDate)
		if err != nil {
			return start, end, anchor, "", invalid(err)
		}
		end = s.Clock.AddLocalDays(lastDay, 1)
		if anchor, err = s.Clock.AnchorAllDayAtLocalHour(startDate, s.AllDayAnchorHour); err != nil {
			return start, end, anchor, "", invalid(err)
		}
		return start, end, anchor, startDate, nil
	}

	if start, err = s.Clock.LocalCivilToUTC(in.Start); err != nil {
		return start, end, anchor, "", invalid(err)
	}
	end = start
	if strings.TrimSpace(in.End) != "" {
		if end, err = s.Clock.LocalCivilToUTC(in.End); err != nil {
			return start, end, anchor, "", invalid(err)
		}
	}
	if end.Before(start) {
		return start, end, anchor, "", fmt.Errorf("%w: end before start", ErrInvalidInput)
	}
	return start, end, start, "", nil
}

// Create validates and stores an event, then schedules its reminders in the
// same transaction.
func (s *EventService) Create(ctx context.Context, userID string, in EventInput) (*domain.CalendarEvent, error) {
	tr := otel.Tracer("services/EventService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("all_day", in.AllDay),
		),
	)
	defer span.End()

	title, err := normalizeEntityTitle(in.Title)
	if err != nil {
		return nil, err
	}
	start, end, anchor, localDate, err := s.eventTimes(in)
	if err != nil {
		return nil, err
	}
	offsets := NormalizeOffsets(s.Reminders.Log, in.ReminderOffsets)

	ev := &domain.CalendarEvent{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           title,
		StartAt:         start,
		EndAt:           end,
		AllDay:          in.AllDay,
		LocalDate:       localDate,
		ReminderOffsets: formatOffsets(offsets),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateEvent(ctx, tx, ev); err != nil {
			return err
		}
		_, err := s.Reminders.scheduleTx(ctx, tx, userID, domain.EntityEvent, ev.ID, anchor, offsets)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Update replaces an owned event's fields and reschedules its pending
// reminders. Reminders already sent for an unchanged fire time are not
// recreated.
func (s *EventService) Update(ctx context.Context, userID, id string, in EventInput) (*domain.CalendarEvent, error) {
	tr := otel.Tracer("services/EventService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("event.id", id),
		),
	)
	defer span.End()

	title, err := normalizeEntityTitle(in.Title)
	if err != nil {
		return nil, err
	}
	start, end, anchor, localDate, err := s.eventTimes(in)
	if err != nil {
		return nil, err
	}
	offsets := NormalizeOffsets(s.Reminders.Log, in.ReminderOffsets)

	var ev *domain.CalendarEvent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := repo.GetEvent(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		cur.Title = title
		cur.StartAt = start
		cur.EndAt = end
		cur.AllDay = in.AllDay
		cur.LocalDate = localDate
		cur.ReminderOffsets = formatOffsets(offsets)
		if err := repo.SaveEvent(ctx, tx, cur); err != nil {
			return err
		}
		ev = cur
		_, err = s.Reminders.scheduleTx(ctx, tx, userID, domain.EntityEvent, id, anchor, offsets)
		return err
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

// Delete soft-deletes an owned event and drops its pending reminders.
func (s *EventService) Delete(ctx context.Context, userID, id string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteEvent(ctx, tx, id, userID); err != nil {
			return err
		}
		_, err := repo.DeletePendingReminders(ctx, tx, domain.EntityEvent, id)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrEventNotFound
	}
	return err
}

// Get returns an owned event.
func (s *EventService) Get(ctx context.Context, userID, id string) (*domain.CalendarEvent, error) {
	ev, err := repo.GetEvent(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// Segments splits an owned event into one segment per local day it touches.
func (s *EventService) Segments(ctx context.Context, userID, id string) ([]spans.Segment, error) {
	ev, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return spans.Collect(spans.SplitIntoLocalDaySegments(s.Clock, ev.StartAt, ev.EndAt)), nil
}
