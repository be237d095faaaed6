// Package dispatcher fans a triggered reminder out to its enabled delivery
// channels. Channel failures are isolated: one channel erroring never stops
// the others and never reaches the lifecycle state machine.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"reminder-service/internal/models"
)

// Broadcaster publishes a payload on an owner's in-app channel. Delivery is
// fire-and-forget; no acknowledgment gates the state transition.
type Broadcaster interface {
	BroadcastToOwner(ctx context.Context, ownerID string, event string, payload any) error
}

// EmailSender and PushSender are the external notification capabilities.
// Retry and backoff are theirs; the dispatcher only records outcomes.
type EmailSender interface {
	SendEmail(ownerID, subject, html string) error
}

type PushSender interface {
	SendPush(ownerID, title, body string, data map[string]any) error
}

// Outcome is the per-channel delivery result for one trigger.
type Outcome struct {
	Channel models.Channel
	Err     error
}

type Dispatcher struct {
	broadcaster Broadcaster
	email       EmailSender
	push        PushSender
}

func New(broadcaster Broadcaster, email EmailSender, push PushSender) *Dispatcher {
	return &Dispatcher{
		broadcaster: broadcaster,
		email:       email,
		push:        push,
	}
}

// Deliver sends through every enabled channel independently and returns one
// outcome per attempted channel. A reminder with all channels disabled
// yields an empty slice; the caller still advances the lifecycle.
func (d *Dispatcher) Deliver(ctx context.Context, reminder *models.Reminder) []Outcome {
	channels := reminder.Channels.Enabled()
	outcomes := make([]Outcome, 0, len(channels))

	for _, channel := range channels {
		var err error
		switch channel {
		case models.ChannelInApp:
			err = d.deliverInApp(ctx, reminder, false)
		case models.ChannelEmail:
			err = d.deliverEmail(reminder)
		case models.ChannelPush:
			err = d.deliverPush(reminder)
		}

		if err != nil {
			log.Printf("Delivery failed for reminder %s on channel %s: %v", reminder.ID.Hex(), channel, err)
		}
		outcomes = append(outcomes, Outcome{Channel: channel, Err: err})
	}

	return outcomes
}

// Nudge broadcasts a low-priority in-app re-notification. Nudges never go
// out over email or push.
func (d *Dispatcher) Nudge(ctx context.Context, reminder *models.Reminder) error {
	return d.deliverInApp(ctx, reminder, true)
}

func (d *Dispatcher) deliverInApp(ctx context.Context, reminder *models.Reminder, nudge bool) error {
	if d.broadcaster == nil {
		return fmt.Errorf("in-app broadcaster is not configured")
	}

	payload := &models.InAppNotification{
		ReminderID: reminder.ID.Hex(),
		Title:      reminder.Title,
		Message:    reminder.DisplayMessage(),
		Category:   reminder.Category,
		Priority:   reminder.Priority,
		Sound:      reminder.Sound,
		Recurrence: reminder.RecurrenceSummary(),
		Nudge:      nudge,
		Timestamp:  time.Now(),
	}

	event := "reminder.triggered"
	if nudge {
		event = "reminder.nudge"
		payload.Priority = "low"
	}

	return d.broadcaster.BroadcastToOwner(ctx, reminder.OwnerID, event, payload)
}

func (d *Dispatcher) deliverEmail(reminder *models.Reminder) error {
	if d.email == nil {
		return fmt.Errorf("email sender is not configured")
	}

	subject := "Reminder: " + reminder.Title
	html := fmt.Sprintf("<h2>%s</h2><p>%s</p>", reminder.Title, reminder.DisplayMessage())
	if summary := reminder.RecurrenceSummary(); summary != "" {
		html += fmt.Sprintf("<p><em>Repeats %s</em></p>", summary)
	}

	return d.email.SendEmail(reminder.OwnerID, subject, html)
}

func (d *Dispatcher) deliverPush(reminder *models.Reminder) error {
	if d.push == nil {
		return fmt.Errorf("push sender is not configured")
	}

	data := map[string]any{
		"reminderId": reminder.ID.Hex(),
		"kind":       reminder.Kind,
	}
	if reminder.Category != "" {
		data["category"] = reminder.Category
	}
	if reminder.Priority != "" {
		data["priority"] = reminder.Priority
	}

	return d.push.SendPush(reminder.OwnerID, reminder.Title, reminder.DisplayMessage(), data)
}
