// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the outbox queue: enqueue, the sweep's
// select/claim cycle, and the bounded-retry bookkeeping on failure.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/domain"
)

// CreateOutboxMessage enqueues a pending message of the given type.
func CreateOutboxMessage(ctx context.Context, db *gorm.DB, typ, payload string) (*domain.OutboxMessage, error) {
	now := time.Now().UTC()
	m := &domain.OutboxMessage{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Status:    domain.OutboxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetOutboxMessage fetches a message by id, or ErrNotFound.
func GetOutboxMessage(ctx context.Context, db *gorm.DB, id string) (*domain.OutboxMessage, error) {
	var m domain.OutboxMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// SelectPendingOutbox returns up to limit deliverable messages of typ, oldest
// first. Stale in_flight claims are included.
func SelectPendingOutbox(ctx context.Context, db *gorm.DB, typ string, staleBefore time.Time, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := db.WithContext(ctx).
		Where("type = ?", typ).
		Where(db.Where("status = ?", domain.OutboxPending).
			Or("status = ? AND claimed_at < ?", domain.OutboxInFlight, staleBefore.UTC())).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ClaimOutbox moves a message to in_flight if it is pending or holds a stale
// claim. It reports whether this caller won the claim.
func ClaimOutbox(ctx context.Context, db *gorm.DB, id string, now, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Where(db.Where("status = ?", domain.OutboxPending).
			Or("status = ? AND claimed_at < ?", domain.OutboxInFlight, staleBefore.UTC())).
		Updates(map[string]any{
			"status":     domain.OutboxInFlight,
			"claimed_at": now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// MarkOutboxSent records a successful delivery and counts the attempt.
func MarkOutboxSent(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.OutboxSent,
			"attempts":   gorm.Expr("attempts + 1"),
			"sent_at":    at.UTC(),
			"claimed_at": nil,
			"last_error": "",
		}).Error
}

// MarkOutboxFailure counts a failed attempt and records errText. The message
// returns to pending, or becomes failed once attempts reaches maxAttempts.
func MarkOutboxFailure(ctx context.Context, db *gorm.DB, id, errText string, maxAttempts int) error {
	return db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts": gorm.Expr("attempts + 1"),
			"status": gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE ? END",
				maxAttempts, domain.OutboxFailed, domain.OutboxPending),
			"last_error": errText,
			"claimed_at": nil,
		}).Error
}

// CountOutboxByStatus returns message counts keyed by status.
func CountOutboxByStatus(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
