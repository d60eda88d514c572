// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for calendar events
// and to-dos, the two entity types reminders are scheduled for.
//
// Error semantics follow the rest of the package: a missing or foreign row
// yields ErrNotFound (gorm.ErrRecordNotFound); other DB errors pass through.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-ops-notify/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateEvent inserts ev. The caller assigns the ID.
func CreateEvent(ctx context.Context, db *gorm.DB, ev *domain.CalendarEvent) error {
	return db.WithContext(ctx).Create(ev).Error
}

// GetEvent fetches an event by id and owner.
func GetEvent(ctx context.Context, db *gorm.DB, id, userID string) (*domain.CalendarEvent, error) {
	var ev domain.CalendarEvent
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// SaveEvent writes every column of ev.
func SaveEvent(ctx context.Context, db *gorm.DB, ev *domain.CalendarEvent) error {
	return db.WithContext(ctx).Save(ev).Error
}

// DeleteEvent soft-deletes an owned event.
func DeleteEvent(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.CalendarEvent{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEventsOverlapping returns a user's events that intersect [from, to),
// ordered by start.
func ListEventsOverlapping(ctx context.Context, db *gorm.DB, userID string, from, to time.Time) ([]domain.CalendarEvent, error) {
	var out []domain.CalendarEvent
	err := db.WithContext(ctx).
		Where("user_id = ? AND start_at < ? AND end_at > ?", userID, to.UTC(), from.UTC()).
		Order("start_at asc").
		Find(&out).Error
	return out, err
}

// CreateTodo inserts t. The caller assigns the ID.
func CreateTodo(ctx context.Context, db *gorm.DB, t *domain.Todo) error {
	return db.WithContext(ctx).Create(t).Error
}

// GetTodo fetches a to-do by id and owner.
func GetTodo(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Todo, error) {
	var t domain.Todo
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTodo soft-deletes an owned to-do.
func DeleteTodo(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Todo{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func entityModel(entityType string) any {
	switch entityType {
	case domain.EntityEvent:
		return &domain.CalendarEvent{}
	case domain.EntityTodo:
		return &domain.Todo{}
	default:
		return nil
	}
}

// LockEntity takes a row lock (SELECT ... FOR UPDATE) on an event or to-do so
// concurrent reschedules of the same entity run one after the other. It must
// be called on a transaction. A missing row is not an error. SQLite has no
// row locks and serializes writers instead.
func LockEntity(ctx context.Context, tx *gorm.DB, entityType, entityID string) error {
	model := entityModel(entityType)
	if model == nil {
		return nil
	}
	var ids []string
	return tx.WithContext(ctx).
		Model(model).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", entityID).
		Limit(1).
		Pluck("id", &ids).Error
}

// MarkEntityNotified stamps last_notified_at on the event or to-do a reminder
// belongs to. Unknown entity types are ignored.
func MarkEntityNotified(ctx context.Context, db *gorm.DB, entityType, entityID string, at time.Time) error {
	model := entityModel(entityType)
	if model == nil {
		return nil
	}
	return db.WithContext(ctx).
		Model(model).
		Where("id = ?", entityID).
		UpdateColumn("last_notified_at", at.UTC()).Error
}
