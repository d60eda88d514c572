// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores browser push subscriptions.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-ops-notify/internal/domain"
)

// UpsertSubscription registers an endpoint for userID. Re-registering the
// same endpoint (possibly from another user after a browser handoff) updates
// its owner and keys in place.
func UpsertSubscription(ctx context.Context, db *gorm.DB, userID, endpoint, p256dh, auth, userAgent string) (*domain.PushSubscription, error) {
	now := time.Now().UTC()
	s := &domain.PushSubscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    p256dh,
		Auth:      auth,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "user_agent", "updated_at"}),
	}).Create(s).Error
	if err != nil {
		return nil, err
	}
	// The insert may have turned into an update; read back the stored row.
	var out domain.PushSubscription
	if err := db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSubscriptions returns all subscriptions of a user, oldest first.
func ListSubscriptions(ctx context.Context, db *gorm.DB, userID string) ([]domain.PushSubscription, error) {
	var out []domain.PushSubscription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// DeleteSubscription removes an owned subscription, or returns ErrNotFound.
func DeleteSubscription(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.PushSubscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscriptionByEndpoint prunes a dead endpoint regardless of owner.
func DeleteSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) error {
	return db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&domain.PushSubscription{}).Error
}
