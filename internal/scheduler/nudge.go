package scheduler

import (
	"context"
	"log"
	"time"

	"reminder-service/internal/models"
)

const (
	defaultIdleThreshold = 30 * time.Minute
	defaultNudgeInterval = 60 * time.Minute
)

// NudgeStore lists the reminders with idle nudging switched on.
type NudgeStore interface {
	NudgeCandidates(ctx context.Context) ([]*models.Reminder, error)
}

// Nudger sends a single idle nudge and records it.
type Nudger interface {
	SendNudge(ctx context.Context, reminder *models.Reminder) error
}

// NudgePoller runs on its own cadence and nags about reminders the user
// has left sitting in the active status. It never changes reminder
// status; it only emits in-app nudges.
type NudgePoller struct {
	store    NudgeStore
	nudger   Nudger
	interval time.Duration
}

func NewNudgePoller(store NudgeStore, nudger Nudger, interval time.Duration) *NudgePoller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &NudgePoller{
		store:    store,
		nudger:   nudger,
		interval: interval,
	}
}

// Start blocks until ctx is cancelled.
func (p *NudgePoller) Start(ctx context.Context) {
	log.Printf("Nudge poller started with interval %s", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Nudge poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *NudgePoller) tick(ctx context.Context) {
	now := time.Now()

	candidates, err := p.store.NudgeCandidates(ctx)
	if err != nil {
		log.Printf("Nudge scan failed: %v", err)
		return
	}

	for _, reminder := range candidates {
		if !nudgeEligible(reminder, now) {
			continue
		}
		if err := p.nudger.SendNudge(ctx, reminder); err != nil {
			log.Printf("Failed to nudge reminder %s: %v", reminder.ID.Hex(), err)
		}
	}
}

// nudgeEligible applies the per-reminder idle threshold and nudge
// spacing. Any user interaction, a view included, resets the idle clock.
func nudgeEligible(reminder *models.Reminder, now time.Time) bool {
	threshold := defaultIdleThreshold
	if reminder.IdleNudge.IdleThresholdMinutes > 0 {
		threshold = time.Duration(reminder.IdleNudge.IdleThresholdMinutes) * time.Minute
	}

	idleSince := lastInteractionAt(reminder)
	if idleSince.IsZero() || now.Sub(idleSince) < threshold {
		return false
	}

	interval := defaultNudgeInterval
	if reminder.IdleNudge.NudgeIntervalMinutes > 0 {
		interval = time.Duration(reminder.IdleNudge.NudgeIntervalMinutes) * time.Minute
	}

	last := reminder.IdleNudge.LastNudgeSent
	return last == nil || now.Sub(*last) >= interval
}

func lastInteractionAt(reminder *models.Reminder) time.Time {
	var latest time.Time
	for _, interaction := range reminder.Interactions {
		if interaction.Timestamp.After(latest) {
			latest = interaction.Timestamp
		}
	}
	return latest
}
