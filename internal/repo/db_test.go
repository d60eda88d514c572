package repo

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/internal/config"
	"github.com/tbourn/go-ops-notify/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "ops.db"))
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("db=%v err=%v", db, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(config.DBConfig{Driver: "oracle"}); err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Fatalf("err = %v", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	cases := map[string]string{
		"ops.db":             "ops.db?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		"file:x?mode=memory": "file:x?mode=memory&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
	}
	for in, want := range cases {
		if got := sqliteDSN(in); got != want {
			t.Fatalf("sqliteDSN(%q) = %q", in, got)
		}
	}
}

func TestOpen_SQLitePragmasOnEveryConnection(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "ops.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if got := sqlDB.Stats().MaxOpenConnections; got != sqlitePool.maxOpen {
		t.Fatalf("MaxOpenConnections = %d", got)
	}

	// two open transactions pin two distinct pooled connections
	tx1 := db.Begin()
	defer tx1.Rollback()
	tx2 := db.Begin()
	defer tx2.Rollback()
	for name, tx := range map[string]*gorm.DB{"tx1": tx1, "tx2": tx2} {
		var busy int
		if err := tx.Raw("PRAGMA busy_timeout").Scan(&busy).Error; err != nil || busy != 5000 {
			t.Fatalf("%s busy_timeout = %d err=%v", name, busy, err)
		}
	}

	var mode string
	if err := db.Raw("PRAGMA journal_mode").Scan(&mode).Error; err != nil || strings.ToLower(mode) != "wal" {
		t.Fatalf("journal_mode = %q err=%v", mode, err)
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.CalendarEvent{}, &domain.Todo{}, &domain.Reminder{},
		&domain.PushSubscription{}, &domain.OutboxMessage{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("missing table for %T", tbl)
		}
	}

	r := &domain.Reminder{ID: "r1", UserID: "u1", EntityType: domain.EntityTodo, EntityID: "t1",
		Channel: domain.ChannelInApp, FireAt: time.Now().UTC(), Status: domain.ReminderPending}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	var got domain.Reminder
	if err := db.First(&got, "id = ?", "r1").Error; err != nil || got.UserID != "u1" {
		t.Fatalf("readback: err=%v got=%+v", err, got)
	}
}
