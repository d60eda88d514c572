package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
	"github.com/tbourn/go-ops-notify/internal/domain"
	"github.com/tbourn/go-ops-notify/internal/repo"
)

// TodoInput is the user-supplied shape of a to-do. Due is a local civil
// date-time, a bare local date, or empty for no due time.
type TodoInput struct {
	Title           string
	Due             string
	ReminderOffsets []any
}

// TodoService manages to-dos and their reminders.
type TodoService struct {
	DB               *gorm.DB
	Reminders        *ReminderService
	Clock            *civiltime.Clock
	AllDayAnchorHour int
}

// Create stores a to-do. Reminders are scheduled only when a due time or date
// is given; a date-only due anchors at AllDayAnchorHour local time.
func (s *TodoService) Create(ctx context.Context, userID string, in TodoInput) (*domain.Todo, error) {
	title, err := normalizeEntityTitle(in.Title)
	if err != nil {
		return nil, err
	}

	t := &domain.Todo{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
	}

	var anchor time.Time
	due := strings.TrimSpace(in.Due)
	switch {
	case due == "":
	case len(due) == len(civiltime.DateLayout):
		date, err := civiltime.ParseDate(due)
		if err != nil {
			return nil, invalid(err)
		}
		if anchor, err = s.Clock.AnchorAllDayAtLocalHour(date, s.AllDayAnchorHour); err != nil {
			return nil, invalid(err)
		}
		t.DueDate = date
	default:
		at, err := s.Clock.LocalCivilToUTC(due)
		if err != nil {
			return nil, invalid(err)
		}
		anchor = at
		t.DueAt = &at
	}

	var offsets []int
	if !anchor.IsZero() {
		offsets = NormalizeOffsets(s.Reminders.Log, in.ReminderOffsets)
	}
	t.ReminderOffsets = formatOffsets(offsets)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateTodo(ctx, tx, t); err != nil {
			return err
		}
		if anchor.IsZero() {
			return nil
		}
		_, err := s.Reminders.scheduleTx(ctx, tx, userID, domain.EntityTodo, t.ID, anchor, offsets)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete soft-deletes an owned to-do and drops its pending reminders.
func (s *TodoService) Delete(ctx context.Context, userID, id string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteTodo(ctx, tx, id, userID); err != nil {
			return err
		}
		_, err := repo.DeletePendingReminders(ctx, tx, domain.EntityTodo, id)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTodoNotFound
	}
	return err
}

// Get returns an owned to-do.
func (s *TodoService) Get(ctx context.Context, userID, id string) (*domain.Todo, error) {
	t, err := repo.GetTodo(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTodoNotFound
	}
	return t, err
}

// Complete marks an owned to-do done and drops its pending reminders.
// Completing a done to-do is a no-op.
func (s *TodoService) Complete(ctx context.Context, userID, id string) (*domain.Todo, error) {
	var out *domain.Todo
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := repo.GetTodo(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if !t.Done {
			if err := tx.Model(t).Update("done", true).Error; err != nil {
				return err
			}
			t.Done = true
		}
		if _, err := repo.DeletePendingReminders(ctx, tx, domain.EntityTodo, id); err != nil {
			return err
		}
		out = t
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTodoNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
