package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Recurrence describes how a recurring reminder repeats. NextTrigger is the
// scheduling cursor the poller reads; LastTriggered is the reference the
// calculator advances from after each fire.
type Recurrence struct {
	Enabled       bool       `json:"enabled" bson:"enabled"`
	Frequency     Frequency  `json:"frequency" bson:"frequency"`
	Interval      int        `json:"interval" bson:"interval"`
	DaysOfWeek    []int      `json:"daysOfWeek,omitempty" bson:"daysOfWeek,omitempty"`
	TimeOfDay     string     `json:"timeOfDay,omitempty" bson:"timeOfDay,omitempty"`
	StartDate     *time.Time `json:"startDate,omitempty" bson:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty" bson:"endDate,omitempty"`
	LastTriggered *time.Time `json:"lastTriggered,omitempty" bson:"lastTriggered,omitempty"`
	NextTrigger   *time.Time `json:"nextTrigger,omitempty" bson:"nextTrigger,omitempty"`
}

type ChannelFlags struct {
	InApp bool `json:"inApp" bson:"inApp"`
	Email bool `json:"email" bson:"email"`
	Push  bool `json:"push" bson:"push"`
}

// Enabled returns the enabled channels in dispatch order.
func (f ChannelFlags) Enabled() []Channel {
	var channels []Channel
	if f.InApp {
		channels = append(channels, ChannelInApp)
	}
	if f.Email {
		channels = append(channels, ChannelEmail)
	}
	if f.Push {
		channels = append(channels, ChannelPush)
	}
	return channels
}

type SoundSettings struct {
	Enabled bool      `json:"enabled" bson:"enabled"`
	Type    SoundType `json:"type,omitempty" bson:"type,omitempty"`
}

type SnoozeEntry struct {
	SnoozedAt       time.Time `json:"snoozedAt" bson:"snoozedAt"`
	DurationMinutes int       `json:"durationMinutes" bson:"durationMinutes"`
	Reason          string    `json:"reason,omitempty" bson:"reason,omitempty"`
}

type SnoozeState struct {
	Count        int           `json:"count" bson:"count"`
	LastSnoozed  *time.Time    `json:"lastSnoozed,omitempty" bson:"lastSnoozed,omitempty"`
	SnoozedUntil *time.Time    `json:"snoozedUntil,omitempty" bson:"snoozedUntil,omitempty"`
	History      []SnoozeEntry `json:"history,omitempty" bson:"history,omitempty"`
}

type IdleNudge struct {
	Enabled              bool       `json:"enabled" bson:"enabled"`
	IdleThresholdMinutes int        `json:"idleThresholdMinutes,omitempty" bson:"idleThresholdMinutes,omitempty"`
	NudgeIntervalMinutes int        `json:"nudgeIntervalMinutes,omitempty" bson:"nudgeIntervalMinutes,omitempty"`
	LastNudgeSent        *time.Time `json:"lastNudgeSent,omitempty" bson:"lastNudgeSent,omitempty"`
}

// Interaction is one entry of the append-only audit trail. Entries are only
// ever pushed, never rewritten.
type Interaction struct {
	Action    InteractionAction `json:"action" bson:"action"`
	Channel   Channel           `json:"channel,omitempty" bson:"channel,omitempty"`
	Timestamp time.Time         `json:"timestamp" bson:"timestamp"`
	Metadata  map[string]any    `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

type CalendarSync struct {
	Provider        string     `json:"provider,omitempty" bson:"provider,omitempty"`
	ExternalEventID string     `json:"externalEventId,omitempty" bson:"externalEventId,omitempty"`
	LastSynced      *time.Time `json:"lastSynced,omitempty" bson:"lastSynced,omitempty"`
	SyncEnabled     bool       `json:"syncEnabled" bson:"syncEnabled"`
}

type Metadata struct {
	CreatedAt int `json:"createdAt" bson:"createdAt"`
	UpdatedAt int `json:"updatedAt" bson:"updatedAt"`
}

// Reminder is the persisted document. Kind selects which of Datetime
// (one-off) or Recurrence (recurring) is authoritative; Version backs the
// optimistic concurrency check between the request path and the poller.
type Reminder struct {
	ID            bson.ObjectID  `json:"id,omitempty" bson:"_id,omitempty"`
	OwnerID       string         `json:"ownerId" bson:"ownerId"`
	Title         string         `json:"title" bson:"title"`
	Message       string         `json:"message,omitempty" bson:"message,omitempty"`
	CustomMessage string         `json:"customMessage,omitempty" bson:"customMessage,omitempty"`
	Category      string         `json:"category,omitempty" bson:"category,omitempty"`
	Priority      string         `json:"priority,omitempty" bson:"priority,omitempty"`
	Kind          ReminderKind   `json:"kind" bson:"kind"`
	Datetime      *time.Time     `json:"datetime,omitempty" bson:"datetime,omitempty"`
	Recurrence    *Recurrence    `json:"recurrence,omitempty" bson:"recurrence,omitempty"`
	Channels      ChannelFlags   `json:"channels" bson:"channels"`
	Sound         SoundSettings  `json:"sound" bson:"sound"`
	Snooze        SnoozeState    `json:"snooze" bson:"snooze"`
	Status        ReminderStatus `json:"status" bson:"status"`
	IdleNudge     IdleNudge      `json:"idleNudge" bson:"idleNudge"`
	Interactions  []Interaction  `json:"interactions,omitempty" bson:"interactions,omitempty"`
	CalendarSync  CalendarSync   `json:"calendarSync" bson:"calendarSync"`
	IsActive      bool           `json:"isActive" bson:"isActive"`
	DismissedAt   *time.Time     `json:"dismissedAt,omitempty" bson:"dismissedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	Version       int64          `json:"-" bson:"version"`
	Metadata      Metadata       `json:"metadata" bson:"metadata"`
}

// DisplayMessage returns the text shown to the user, preferring the custom
// message when one is set.
func (r *Reminder) DisplayMessage() string {
	if r.CustomMessage != "" {
		return r.CustomMessage
	}
	return r.Message
}

// RecurrenceSummary renders a short human-readable description of the
// schedule for notification payloads.
func (r *Reminder) RecurrenceSummary() string {
	if r.Kind != KindRecurring || r.Recurrence == nil {
		return ""
	}

	rec := r.Recurrence
	interval := rec.Interval
	if interval < 1 {
		interval = 1
	}

	var summary string
	switch rec.Frequency {
	case FrequencyDaily:
		if interval == 1 {
			summary = "daily"
		} else {
			summary = fmt.Sprintf("every %d days", interval)
		}
	case FrequencyWeekly:
		if interval == 1 {
			summary = "weekly"
		} else {
			summary = fmt.Sprintf("every %d weeks", interval)
		}
	case FrequencyMonthly:
		if interval == 1 {
			summary = "monthly"
		} else {
			summary = fmt.Sprintf("every %d months", interval)
		}
	case FrequencyCustom:
		summary = "custom schedule"
	default:
		summary = string(rec.Frequency)
	}

	if len(rec.DaysOfWeek) > 0 {
		names := make([]string, 0, len(rec.DaysOfWeek))
		for _, d := range rec.DaysOfWeek {
			if d >= 0 && d <= 6 {
				names = append(names, time.Weekday(d).String()[:3])
			}
		}
		if len(names) > 0 {
			summary += " on " + strings.Join(names, ", ")
		}
	}

	if rec.TimeOfDay != "" {
		summary += " at " + rec.TimeOfDay
	}

	return summary
}
