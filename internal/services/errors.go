// Package services defines the business logic for calendar events, to-dos,
// reminders, push subscriptions, and notification dispatch.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrInvalidInput is returned for malformed dates, non-positive snooze
	// minutes, empty titles, and similar validation failures. Validation
	// always happens before any write.
	ErrInvalidInput = errors.New("invalid input")

	// ErrReminderNotFound indicates that the reminder does not exist or
	// belongs to another user. The two cases are indistinguishable.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrEventNotFound indicates that the event does not exist or is not
	// accessible to the current user.
	ErrEventNotFound = errors.New("event not found")

	// ErrTodoNotFound indicates that the to-do does not exist or is not
	// accessible to the current user.
	ErrTodoNotFound = errors.New("todo not found")

	// ErrSubscriptionNotFound indicates that the push subscription does not
	// exist or is not accessible to the current user.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
