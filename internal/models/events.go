package models

import "time"

type EventType string

const (
	EventTypeReminderCreated   EventType = "reminder.created"
	EventTypeReminderUpdated   EventType = "reminder.updated"
	EventTypeReminderDeleted   EventType = "reminder.deleted"
	EventTypeReminderTriggered EventType = "reminder.triggered"
	EventTypeReminderSnoozed   EventType = "reminder.snoozed"
	EventTypeReminderDismissed EventType = "reminder.dismissed"
	EventTypeReminderCompleted EventType = "reminder.completed"
	EventTypeReminderExpired   EventType = "reminder.expired"
)

type ReminderEvent struct {
	EventType  EventType      `json:"eventType"`
	ReminderID string         `json:"reminderId"`
	OwnerID    string         `json:"ownerId"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// UserDeletedEvent is consumed from the user-events exchange; the owner's
// reminders are unscheduled when it arrives.
type UserDeletedEvent struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// EmailCommand and PushCommand are the send requests handed to the platform
// notification service. Address resolution for email happens there; this
// service only knows the owner.
type EmailCommand struct {
	OwnerID   string    `json:"ownerId"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Timestamp time.Time `json:"timestamp"`
}

type PushCommand struct {
	OwnerID   string         `json:"ownerId"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// InAppNotification is the structured payload broadcast on the owner's
// in-app channel when a reminder fires or nudges.
type InAppNotification struct {
	ReminderID string        `json:"reminderId"`
	Title      string        `json:"title"`
	Message    string        `json:"message,omitempty"`
	Category   string        `json:"category,omitempty"`
	Priority   string        `json:"priority,omitempty"`
	Sound      SoundSettings `json:"sound"`
	Recurrence string        `json:"recurrence,omitempty"`
	Nudge      bool          `json:"nudge,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
