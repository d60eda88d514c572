// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Reminder
// model: scheduling writes, the dispatcher's select/claim/complete cycle, and
// user-driven snooze/acknowledge transitions.
//
// Every state change is a single-row conditional UPDATE keyed by id, so two
// sweeps racing on the same row cannot both win a claim.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/domain"
)

// InsertReminders bulk-inserts reminder rows. Empty input is a no-op.
func InsertReminders(ctx context.Context, db *gorm.DB, rs []domain.Reminder) error {
	if len(rs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rs).Error
}

// DeletePendingReminders removes the pending rows of one entity and returns
// how many were removed. Sent and in-flight rows are kept.
func DeletePendingReminders(ctx context.Context, db *gorm.DB, entityType, entityID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND status = ?", entityType, entityID, domain.ReminderPending).
		Delete(&domain.Reminder{})
	return res.RowsAffected, res.Error
}

// SentReminderExists reports whether a reminder for the same entity, channel,
// offset, and fire time was already delivered.
func SentReminderExists(ctx context.Context, db *gorm.DB, entityType, entityID, channel string, offset int, fireAt time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("entity_type = ? AND entity_id = ? AND channel = ? AND offset_minutes = ? AND fire_at = ? AND status = ?",
			entityType, entityID, channel, offset, fireAt.UTC(), domain.ReminderSent).
		Count(&n).Error
	return n > 0, err
}

// SelectDueReminders returns up to limit push reminders that are due at now,
// earliest fire time first. Rows stuck in_flight since before staleBefore are
// included so an abandoned claim is eventually retried.
func SelectDueReminders(ctx context.Context, db *gorm.DB, now, staleBefore time.Time, limit int) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := db.WithContext(ctx).
		Where("channel = ? AND fire_at <= ?", domain.ChannelPush, now.UTC()).
		Where(db.Where("status = ?", domain.ReminderPending).
			Or("status = ? AND claimed_at < ?", domain.ReminderInFlight, staleBefore.UTC())).
		Order("fire_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ClaimReminder moves a reminder to in_flight if it is pending or holds a
// stale claim. It reports whether this caller won the claim.
func ClaimReminder(ctx context.Context, db *gorm.DB, id string, now, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ?", id).
		Where(db.Where("status = ?", domain.ReminderPending).
			Or("status = ? AND claimed_at < ?", domain.ReminderInFlight, staleBefore.UTC())).
		Updates(map[string]any{
			"status":     domain.ReminderInFlight,
			"claimed_at": now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// CompleteReminder marks a claimed reminder sent.
func CompleteReminder(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ? AND status = ?", id, domain.ReminderInFlight).
		Updates(map[string]any{
			"status":       domain.ReminderSent,
			"last_sent_at": at.UTC(),
			"claimed_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseReminder returns a claimed reminder to pending so the next sweep
// retries it.
func ReleaseReminder(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ? AND status = ?", id, domain.ReminderInFlight).
		Updates(map[string]any{
			"status":     domain.ReminderPending,
			"claimed_at": nil,
		}).Error
}

// GetReminder fetches a reminder by id and owner, or ErrNotFound.
func GetReminder(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Reminder, error) {
	var r domain.Reminder
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// AckReminder marks an owned, not yet sent reminder as sent. It reports
// whether the row changed; an already sent reminder yields false, nil.
func AckReminder(ctx context.Context, db *gorm.DB, id, userID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ? AND user_id = ? AND status <> ?", id, userID, domain.ReminderSent).
		Updates(map[string]any{
			"status":       domain.ReminderSent,
			"last_sent_at": at.UTC(),
			"claimed_at":   nil,
		})
	return res.RowsAffected == 1, res.Error
}

// SnoozeReminder reschedules an owned reminder to fireAt and resets it to
// pending with no last-sent stamp.
func SnoozeReminder(ctx context.Context, db *gorm.DB, id, userID string, fireAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"fire_at":      fireAt.UTC(),
			"status":       domain.ReminderPending,
			"last_sent_at": nil,
			"claimed_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountReminders returns the number of a user's reminders, optionally
// filtered by status.
func CountReminders(ctx context.Context, db *gorm.DB, userID, status string) (int64, error) {
	var total int64
	err := remindersFor(ctx, db, userID, status).Count(&total).Error
	return total, err
}

// ListRemindersPage returns a page of a user's reminders ordered by fire time
// descending, optionally filtered by status.
func ListRemindersPage(ctx context.Context, db *gorm.DB, userID, status string, offset, limit int) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := remindersFor(ctx, db, userID, status).
		Order("fire_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func remindersFor(ctx context.Context, db *gorm.DB, userID, status string) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.Reminder{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}
