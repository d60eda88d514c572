package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/domain"
	"github.com/tbourn/go-ops-notify/internal/push"
	"github.com/tbourn/go-ops-notify/internal/repo"
)

// SubscriptionService registers browser push endpoints.
type SubscriptionService struct {
	DB *gorm.DB
}

// Register stores or refreshes a push subscription for userID. The endpoint
// must be an absolute https URL and both keys are required.
func (s *SubscriptionService) Register(ctx context.Context, userID, endpoint, p256dh, auth, userAgent string) (*domain.PushSubscription, error) {
	endpoint = strings.TrimSpace(endpoint)
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint must be an https URL", ErrInvalidInput)
	}
	p256dh, auth = strings.TrimSpace(p256dh), strings.TrimSpace(auth)
	if p256dh == "" || auth == "" {
		return nil, fmt.Errorf("%w: p256dh and auth keys are required", ErrInvalidInput)
	}
	if len(userAgent) > 255 {
		userAgent = userAgent[:255]
	}
	return repo.UpsertSubscription(ctx, s.DB, userID, endpoint, p256dh, auth, userAgent)
}

// Remove deletes an owned subscription.
func (s *SubscriptionService) Remove(ctx context.Context, userID, id string) error {
	err := repo.DeleteSubscription(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSubscriptionNotFound
	}
	return err
}

// List returns the user's subscriptions.
func (s *SubscriptionService) List(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	return repo.ListSubscriptions(ctx, s.DB, userID)
}

// OutboxService queues fire-and-forget pushes for the outbox sweep.
type OutboxService struct {
	DB *gorm.DB
}

// EnqueuePush queues one notification for one subscription.
func (s *OutboxService) EnqueuePush(ctx context.Context, sub domain.PushSubscription, n push.Notification) (*domain.OutboxMessage, error) {
	return enqueuePush(ctx, s.DB, sub, n)
}

// BroadcastToUser queues n for every subscription of userID and returns how
// many messages were queued. All rows are written in one transaction.
func (s *OutboxService) BroadcastToUser(ctx context.Context, userID string, n push.Notification) (int, error) {
	if strings.TrimSpace(n.Title) == "" {
		return 0, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	var queued int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subs, err := repo.ListSubscriptions(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if _, err := enqueuePush(ctx, tx, sub, n); err != nil {
				return err
			}
			queued++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return queued, nil
}

func enqueuePush(ctx context.Context, db *gorm.DB, sub domain.PushSubscription, n push.Notification) (*domain.OutboxMessage, error) {
	if n.Tag == "" {
		n.Tag = "broadcast-" + uuid.NewString()
	}
	body, err := n.Encode()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(domain.PushEnvelope{
		SubscriptionID: sub.ID,
		Endpoint:       sub.Endpoint,
		P256dh:         sub.P256dh,
		Auth:           sub.Auth,
		Body:           body,
	})
	if err != nil {
		return nil, err
	}
	return repo.CreateOutboxMessage(ctx, db, domain.OutboxTypePush, string(payload))
}
