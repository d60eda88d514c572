// Package handlers exposes the REST endpoints for events, to-dos, reminders,
// push subscriptions, dispatch sweeps, and reports.
//
// Handlers are transport-thin: they bind and validate input, call application
// services through the interfaces below, and translate service sentinels into
// the stable error envelope.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ops-notify/internal/domain"
	"github.com/tbourn/go-ops-notify/internal/push"
	"github.com/tbourn/go-ops-notify/internal/services"
	"github.com/tbourn/go-ops-notify/internal/spans"
	"github.com/tbourn/go-ops-notify/internal/utils"
)

//
// Service contracts (context-aware)
//

// EventService manages calendar events.
type EventService interface {
	Create(ctx context.Context, userID string, in services.EventInput) (*domain.CalendarEvent, error)
	Update(ctx context.Context, userID, id string, in services.EventInput) (*domain.CalendarEvent, error)
	Delete(ctx context.Context, userID, id string) error
	Get(ctx context.Context, userID, id string) (*domain.CalendarEvent, error)
	Segments(ctx context.Context, userID, id string) ([]spans.Segment, error)
}

// TodoService manages to-dos.
type TodoService interface {
	Create(ctx context.Context, userID string, in services.TodoInput) (*domain.Todo, error)
	Get(ctx context.Context, userID, id string) (*domain.Todo, error)
	Complete(ctx context.Context, userID, id string) (*domain.Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

// ReminderService lists reminders and applies user transitions.
type ReminderService interface {
	ListPage(ctx context.Context, userID, status string, page, pageSize int) ([]domain.Reminder, int64, error)
	// Stats returns the count and latest update of a user's reminders for ETags.
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	Snooze(ctx context.Context, userID, id string, minutes float64) (time.Time, error)
	Acknowledge(ctx context.Context, userID, id string) error
}

// SubscriptionService registers push endpoints.
type SubscriptionService interface {
	Register(ctx context.Context, userID, endpoint, p256dh, auth, userAgent string) (*domain.PushSubscription, error)
	Remove(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string) ([]domain.PushSubscription, error)
}

// Broadcaster queues ad-hoc notifications on the outbox.
type Broadcaster interface {
	BroadcastToUser(ctx context.Context, userID string, n push.Notification) (int, error)
}

// Dispatcher runs one delivery sweep.
type Dispatcher interface {
	RunOnce(ctx context.Context) (services.SweepReport, error)
}

// ReportService builds the daily hours report.
type ReportService interface {
	DailyHours(ctx context.Context, userID, from, to string) ([]spans.DayTotal, error)
}

// IdempotencyStore remembers which resource an Idempotency-Key created.
// A nil store disables replay.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string) (resourceID string, found bool, err error)
	Save(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Deps bundles the services the handlers depend on.
type Deps struct {
	Events        EventService
	Todos         TodoService
	Reminders     ReminderService
	Subscriptions SubscriptionService
	Outbox        Broadcaster
	Dispatcher    Dispatcher
	Reports       ReportService
	Idempotency   IdempotencyStore
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	events    EventService
	todos     TodoService
	reminders ReminderService
	subs      SubscriptionService
	outbox    Broadcaster
	dispatch  Dispatcher
	reports   ReportService
	idem      IdempotencyStore
}

// New constructs a Handlers bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		events:    d.Events,
		todos:     d.Todos,
		reminders: d.Reminders,
		subs:      d.Subscriptions,
		outbox:    d.Outbox,
		dispatch:  d.Dispatcher,
		reports:   d.Reports,
		idem:      d.Idempotency,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header and finally to
// "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination reads page and page_size from the query, bounded by the
// utils page limits.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
