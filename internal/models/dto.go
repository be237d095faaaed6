package models

import "time"

type CreateReminderRequest struct {
	Title         string         `json:"title"`
	Message       string         `json:"message,omitempty"`
	CustomMessage string         `json:"customMessage,omitempty"`
	Category      string         `json:"category,omitempty"`
	Priority      string         `json:"priority,omitempty"`
	Kind          ReminderKind   `json:"kind"`
	Datetime      *time.Time     `json:"datetime,omitempty"`
	Recurrence    *Recurrence    `json:"recurrence,omitempty"`
	Channels      *ChannelFlags  `json:"channels,omitempty"`
	Sound         *SoundSettings `json:"sound,omitempty"`
	IdleNudge     *IdleNudge     `json:"idleNudge,omitempty"`
	CalendarSync  *CalendarSync  `json:"calendarSync,omitempty"`
}

// ReminderPatch carries the mutable fields of an update; nil fields are left
// untouched. Kind is intentionally absent: it is immutable after creation.
type ReminderPatch struct {
	Title         *string        `json:"title,omitempty"`
	Message       *string        `json:"message,omitempty"`
	CustomMessage *string        `json:"customMessage,omitempty"`
	Category      *string        `json:"category,omitempty"`
	Priority      *string        `json:"priority,omitempty"`
	Datetime      *time.Time     `json:"datetime,omitempty"`
	Recurrence    *Recurrence    `json:"recurrence,omitempty"`
	Channels      *ChannelFlags  `json:"channels,omitempty"`
	Sound         *SoundSettings `json:"sound,omitempty"`
	IdleNudge     *IdleNudge     `json:"idleNudge,omitempty"`
	CalendarSync  *CalendarSync  `json:"calendarSync,omitempty"`
}

type UpdateReminderRequest struct {
	Reminder ReminderPatch `json:"reminder"`
}

type SnoozeRequest struct {
	DurationMinutes int    `json:"durationMinutes"`
	Reason          string `json:"reason,omitempty"`
}

type ViewRequest struct {
	Channel Channel `json:"channel,omitempty"`
}

type ReminderListResult struct {
	Reminders   []*Reminder `json:"reminders"`
	TotalCount  int64       `json:"totalCount"`
	PageCount   int         `json:"pageCount"`
	CurrentPage int         `json:"currentPage"`
}
