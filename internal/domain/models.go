// Package domain defines the persistence models for calendar events, to-dos,
// reminders, push subscriptions, and the notification outbox. These types are
// mapped with GORM and form the core data layer of the service.
package domain

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Entity types a reminder can belong to.
const (
	EntityEvent = "event"
	EntityTodo  = "todo"
)

// Reminder delivery channels.
const (
	ChannelPush  = "push"
	ChannelInApp = "inapp"
)

// Reminder states. InFlight is a transient claim held by a dispatcher sweep.
const (
	ReminderPending  = "pending"
	ReminderInFlight = "in_flight"
	ReminderSent     = "sent"
)

// Outbox states.
const (
	OutboxPending  = "pending"
	OutboxInFlight = "in_flight"
	OutboxSent     = "sent"
	OutboxFailed   = "failed"
)

// OutboxTypePush tags outbox messages delivered through web push.
const OutboxTypePush = "push"

// CalendarEvent is a scheduled block of time owned by a user. Timed events
// store UTC start/end instants. All-day events also keep the local date they
// were entered for so reminders can be anchored at a local hour.
//
// Fields:
//   - ReminderOffsets: comma-separated minute offsets before the anchor.
//   - LastNotifiedAt: advisory stamp set whenever one of its reminders is sent.
type CalendarEvent struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          string         `json:"user_id"          gorm:"type:varchar(64);not null;index:idx_user_events,priority:1"`
	Title           string         `json:"title"            gorm:"type:varchar(255);not null"`
	StartAt         time.Time      `json:"start_at"         gorm:"not null;index:idx_user_events,priority:2"`
	EndAt           time.Time      `json:"end_at"           gorm:"not null"`
	AllDay          bool           `json:"all_day"          gorm:"not null;default:false"`
	LocalDate       string         `json:"local_date,omitempty" gorm:"type:varchar(10)"`
	ReminderOffsets string         `json:"reminder_offsets" gorm:"type:varchar(255);not null;default:''"`
	LastNotifiedAt  *time.Time     `json:"last_notified_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                gorm:"index"`
}

// TableName returns the database table name for CalendarEvent.
func (CalendarEvent) TableName() string { return "calendar_events" }

// Todo is a task with an optional due instant or due date.
type Todo struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          string         `json:"user_id"          gorm:"type:varchar(64);not null;index"`
	Title           string         `json:"title"            gorm:"type:varchar(255);not null"`
	DueAt           *time.Time     `json:"due_at,omitempty"`
	DueDate         string         `json:"due_date,omitempty" gorm:"type:varchar(10)"`
	ReminderOffsets string         `json:"reminder_offsets" gorm:"type:varchar(255);not null;default:''"`
	Done            bool           `json:"done"             gorm:"not null;default:false"`
	LastNotifiedAt  *time.Time     `json:"last_notified_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                gorm:"index"`
}

// TableName returns the database table name for Todo.
func (Todo) TableName() string { return "todos" }

// Reminder is one scheduled notification for an event or to-do.
//
// FireAt is always UTC. At most one pending row exists per
// (entity, channel, offset); scheduling replaces pending rows under a lock on
// the entity row instead of appending. ClaimedAt is set while a sweep holds the row in_flight.
type Reminder struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID        string     `json:"user_id"        gorm:"type:varchar(64);not null;index"`
	EntityType    string     `json:"entity_type"    gorm:"type:varchar(16);not null;index:idx_reminder_entity,priority:1;check:entity_type IN ('event','todo')"`
	EntityID      string     `json:"entity_id"      gorm:"type:char(36);not null;index:idx_reminder_entity,priority:2"`
	Channel       string     `json:"channel"        gorm:"type:varchar(16);not null;index:idx_reminder_due,priority:2;check:channel IN ('push','inapp')"`
	OffsetMinutes int        `json:"offset_minutes" gorm:"not null;default:0"`
	FireAt        time.Time  `json:"fire_at"        gorm:"not null;index:idx_reminder_due,priority:3"`
	Status        string     `json:"status"         gorm:"type:varchar(16);not null;default:'pending';index:idx_reminder_due,priority:1;check:status IN ('pending','in_flight','sent')"`
	ClaimedAt     *time.Time `json:"-"`
	LastSentAt    *time.Time `json:"last_sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Reminder.
func (Reminder) TableName() string { return "reminders" }

// PushSubscription is a browser push endpoint registered by a user.
type PushSubscription struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Endpoint  string    `json:"endpoint"   gorm:"type:varchar(1024);not null;uniqueIndex"`
	P256dh    string    `json:"p256dh"     gorm:"type:varchar(255);not null"`
	Auth      string    `json:"auth"       gorm:"type:varchar(255);not null"`
	UserAgent string    `json:"user_agent" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for PushSubscription.
func (PushSubscription) TableName() string { return "push_subscriptions" }

// OutboxMessage is a queued fire-and-forget delivery. Attempts only grows;
// once Status is failed the row is never picked up again.
type OutboxMessage struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	Type      string     `json:"type"       gorm:"type:varchar(32);not null;index:idx_outbox_queue,priority:2"`
	Payload   string     `json:"payload"    gorm:"type:text;not null"`
	Status    string     `json:"status"     gorm:"type:varchar(16);not null;default:'pending';index:idx_outbox_queue,priority:1;check:status IN ('pending','in_flight','sent','failed')"`
	Attempts  int        `json:"attempts"   gorm:"not null;default:0"`
	LastError string     `json:"last_error" gorm:"type:text"`
	ClaimedAt *time.Time `json:"-"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"index:idx_outbox_queue,priority:3"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name for OutboxMessage.
func (OutboxMessage) TableName() string { return "outbox_messages" }

// PushEnvelope is the JSON payload of a push outbox message: the target
// subscription plus the already-encoded notification body.
type PushEnvelope struct {
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Endpoint       string          `json:"endpoint"`
	P256dh         string          `json:"p256dh"`
	Auth           string          `json:"auth"`
	Body           json.RawMessage `json:"body"`
}
