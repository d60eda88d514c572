package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-ops-notify/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestRemindersStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, _, err := RemindersStats(context.Background(), db, "u1")
	if err == nil {
		t.Fatalf("expected error due to missing reminders table")
	}
}

func TestRemindersStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Reminder{})
	count, maxAt, err := RemindersStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("RemindersStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestRemindersStats_CountAndLatest(t *testing.T) {
	db := newTestDB(t, &domain.Reminder{})
	base := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

	for i, uid := range []string{"u1", "u1", "u2"} {
		r := &domain.Reminder{
			ID: fmt.Sprintf("r%d", i), UserID: uid, EntityType: domain.EntityEvent, EntityID: "e1",
			Channel: domain.ChannelPush, FireAt: base, Status: domain.ReminderPending,
		}
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
		// Pin updated_at so ordering is deterministic.
		db.Model(&domain.Reminder{}).Where("id = ?", r.ID).UpdateColumn("updated_at", base.Add(time.Duration(i)*time.Minute))
	}

	count, maxAt, err := RemindersStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("RemindersStats: %v", err)
	}
	if count != 2 || maxAt == nil || !maxAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected stats: count=%d max=%v", count, maxAt)
	}
}
