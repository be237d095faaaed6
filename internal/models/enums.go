package models

type ReminderKind string

const (
	KindOneOff    ReminderKind = "one-off"
	KindRecurring ReminderKind = "recurring"
)

type ReminderStatus string

const (
	StatusPending   ReminderStatus = "pending"
	StatusActive    ReminderStatus = "active"
	StatusSnoozed   ReminderStatus = "snoozed"
	StatusDismissed ReminderStatus = "dismissed"
	StatusCompleted ReminderStatus = "completed"
	StatusExpired   ReminderStatus = "expired"
)

// IsTerminal reports whether the status admits no further scheduling.
func (s ReminderStatus) IsTerminal() bool {
	return s == StatusDismissed || s == StatusCompleted || s == StatusExpired
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom:
		return true
	default:
		return false
	}
}

// Channel is one of the closed set of delivery paths.
type Channel string

const (
	ChannelInApp Channel = "inApp"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

type InteractionAction string

const (
	ActionCreated   InteractionAction = "created"
	ActionDelivered InteractionAction = "delivered"
	ActionViewed    InteractionAction = "viewed"
	ActionSnoozed   InteractionAction = "snoozed"
	ActionDismissed InteractionAction = "dismissed"
	ActionCompleted InteractionAction = "completed"
	ActionNudged    InteractionAction = "nudged"
)

type SoundType string

const (
	SoundDefault SoundType = "default"
	SoundChime   SoundType = "chime"
	SoundBell    SoundType = "bell"
	SoundSoft    SoundType = "soft"
	SoundUrgent  SoundType = "urgent"
)
