package domain

import (
	"encoding/json"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(CalendarEvent{}).TableName():    "calendar_events",
		(Todo{}).TableName():             "todos",
		(Reminder{}).TableName():         "reminders",
		(PushSubscription{}).TableName(): "push_subscriptions",
		(OutboxMessage{}).TableName():    "outbox_messages",
		(Idempotency{}).TableName():      "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndConstraints(t *testing.T) {
	db := newDomainDB(t)

	models := []any{&CalendarEvent{}, &Todo{}, &Reminder{}, &PushSubscription{}, &OutboxMessage{}}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range models {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	if !m.HasIndex(&Reminder{}, "idx_reminder_due") {
		t.Fatalf("expected index idx_reminder_due on reminders")
	}
	if !m.HasIndex(&Reminder{}, "idx_reminder_entity") {
		t.Fatalf("expected index idx_reminder_entity on reminders")
	}
	if !m.HasIndex(&OutboxMessage{}, "idx_outbox_queue") {
		t.Fatalf("expected index idx_outbox_queue on outbox_messages")
	}
	if !m.HasIndex(&CalendarEvent{}, "idx_user_events") {
		t.Fatalf("expected index idx_user_events on calendar_events")
	}

	now := time.Now().UTC()

	ok := &Reminder{ID: "r1", UserID: "u1", EntityType: EntityEvent, EntityID: "e1",
		Channel: ChannelPush, FireAt: now, Status: ReminderPending}
	if err := db.Create(ok).Error; err != nil {
		t.Fatalf("insert reminder: %v", err)
	}
	var got Reminder
	if err := db.First(&got, "id = ?", "r1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.Status != ReminderPending || got.LastSentAt != nil || got.ClaimedAt != nil {
		t.Fatalf("unexpected reminder: %+v", got)
	}

	bad := &Reminder{ID: "r2", UserID: "u1", EntityType: EntityEvent, EntityID: "e1",
		Channel: "sms", FireAt: now, Status: ReminderPending}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown channel")
	}

	// Endpoint is unique across users.
	s1 := &PushSubscription{ID: "s1", UserID: "u1", Endpoint: "https://push/x", P256dh: "p", Auth: "a"}
	s2 := &PushSubscription{ID: "s2", UserID: "u2", Endpoint: "https://push/x", P256dh: "p", Auth: "a"}
	if err := db.Create(s1).Error; err != nil {
		t.Fatalf("insert sub: %v", err)
	}
	if err := db.Create(s2).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on endpoint")
	}

	// Outbox defaults.
	msg := &OutboxMessage{ID: "o1", Type: OutboxTypePush, Payload: "{}"}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("insert outbox: %v", err)
	}
	var o OutboxMessage
	if err := db.First(&o, "id = ?", "o1").Error; err != nil {
		t.Fatalf("readback outbox: %v", err)
	}
	if o.Status != OutboxPending || o.Attempts != 0 {
		t.Fatalf("unexpected outbox defaults: %+v", o)
	}

	// Soft delete hides events from default scope.
	ev := &CalendarEvent{ID: "e1", UserID: "u1", Title: "Pour", StartAt: now, EndAt: now.Add(time.Hour)}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := db.Delete(&CalendarEvent{}, "id = ?", "e1").Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	var cnt int64
	db.Model(&CalendarEvent{}).Where("id = ?", "e1").Count(&cnt)
	if cnt != 0 {
		t.Fatalf("expected soft-deleted event to be hidden, count=%d", cnt)
	}
	db.Unscoped().Model(&CalendarEvent{}).Where("id = ?", "e1").Count(&cnt)
	if cnt != 1 {
		t.Fatalf("expected soft-deleted event to remain unscoped, count=%d", cnt)
	}
}

func TestPushEnvelope_JSON(t *testing.T) {
	env := PushEnvelope{Endpoint: "https://push/x", P256dh: "p", Auth: "a", Body: json.RawMessage(`{"title":"hi"}`)}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back PushEnvelope
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(back.Body) != `{"title":"hi"}` || back.SubscriptionID != "" {
		t.Fatalf("unexpected envelope: %+v (%s)", back, b)
	}
}
