package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-ops-notify/internal/civiltime"
	"github.com/tbourn/go-ops-notify/internal/domain"
	"github.com/tbourn/go-ops-notify/internal/push"
	"github.com/tbourn/go-ops-notify/internal/repo"
)

// ---------- test helpers ----------

// fixed "now" for every service test: 07:00 in New York
var testNow = time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps the shared in-memory database free of lock errors
	sqlDB.SetMaxOpenConns(1)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func nyClock(t *testing.T) *civiltime.Clock {
	t.Helper()
	c, err := civiltime.Load("America/New_York")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return c
}

func newReminderSvc(db *gorm.DB) *ReminderService {
	return &ReminderService{DB: db, Log: zerolog.Nop(), Now: fixedNow}
}

func mustGetReminder(t *testing.T, db *gorm.DB, id string) domain.Reminder {
	t.Helper()
	var r domain.Reminder
	if err := db.Where("id = ?", id).First(&r).Error; err != nil {
		t.Fatalf("load reminder %s: %v", id, err)
	}
	return r
}

func seedReminder(t *testing.T, db *gorm.DB, userID string, fireAt time.Time) domain.Reminder {
	t.Helper()
	r := domain.Reminder{
		ID:         uuid.NewString(),
		UserID:     userID,
		EntityType: domain.EntityEvent,
		EntityID:   uuid.NewString(),
		Channel:    domain.ChannelPush,
		FireAt:     fireAt.UTC(),
		Status:     domain.ReminderPending,
	}
	if err := repo.InsertReminders(context.Background(), db, []domain.Reminder{r}); err != nil {
		t.Fatalf("seed reminder: %v", err)
	}
	return r
}

func seedSubscription(t *testing.T, db *gorm.DB, userID, endpoint string) *domain.PushSubscription {
	t.Helper()
	s, err := repo.UpsertSubscription(context.Background(), db, userID, endpoint, "p256dh-key", "auth-key", "test")
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return s
}

type sentPush struct {
	Sub     push.Subscription
	Payload []byte
}

// fakeSender records every delivery. fail, when set, decides the outcome of
// call n (1-based).
type fakeSender struct {
	mu    sync.Mutex
	calls []sentPush
	fail  func(n int, sub push.Subscription) error
}

func (f *fakeSender) Send(_ context.Context, sub push.Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentPush{Sub: sub, Payload: append([]byte(nil), payload...)})
	if f.fail != nil {
		return f.fail(len(f.calls), sub)
	}
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errTransient = errors.New("push service unavailable")
