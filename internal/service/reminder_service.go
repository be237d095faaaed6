package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"reminder-service/internal/dispatcher"
	"reminder-service/internal/event"
	"reminder-service/internal/models"
	"reminder-service/internal/recurrence"
	"reminder-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	ErrNotFound   = errors.New("reminder not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("reminder state conflict")
)

// ReminderStore is the document store contract the engine runs against.
// User-facing operations are always owner-scoped; the poller paths are not.
type ReminderStore interface {
	Insert(ctx context.Context, reminder *models.Reminder) (*models.Reminder, error)
	FindByIDAndOwner(ctx context.Context, id bson.ObjectID, ownerID string) (*models.Reminder, error)
	FindByOwner(ctx context.Context, ownerID string, page, limit int) ([]*models.Reminder, int64, error)
	FindActiveByOwner(ctx context.Context, ownerID string) ([]*models.Reminder, error)
	Save(ctx context.Context, reminder *models.Reminder) (*models.Reminder, error)
	Delete(ctx context.Context, id bson.ObjectID, ownerID string) error
	ClaimOneOff(ctx context.Context, id bson.ObjectID) (*models.Reminder, error)
	ClaimRecurring(ctx context.Context, id bson.ObjectID, observedNext *time.Time, firedAt time.Time, next *time.Time) (*models.Reminder, error)
	AppendInteractions(ctx context.Context, id bson.ObjectID, interactions []models.Interaction) error
	MarkNudged(ctx context.Context, id bson.ObjectID, at time.Time) error
	DeactivateByOwner(ctx context.Context, ownerID string) (int64, error)
}

type ReminderService struct {
	store      ReminderStore
	dispatcher *dispatcher.Dispatcher
	publisher  event.Publisher

	// scheduleChanged pokes the poller for an immediate re-check after a
	// mutation; wired by main, optional.
	scheduleChanged func()
}

func NewReminderService(store ReminderStore, dsp *dispatcher.Dispatcher, publisher event.Publisher) *ReminderService {
	return &ReminderService{
		store:      store,
		dispatcher: dsp,
		publisher:  publisher,
	}
}

func (s *ReminderService) OnScheduleChange(fn func()) {
	s.scheduleChanged = fn
}

func (s *ReminderService) notifyScheduleChange() {
	if s.scheduleChanged != nil {
		s.scheduleChanged()
	}
}

// CreateReminder validates the kind-specific fields, computes the initial
// scheduling cursor for recurring reminders, and persists the document.
func (s *ReminderService) CreateReminder(ctx context.Context, ownerID string, req *models.CreateReminderRequest) (*models.Reminder, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", ErrValidation)
	}
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	now := time.Now()

	reminder := &models.Reminder{
		OwnerID:       ownerID,
		Title:         req.Title,
		Message:       req.Message,
		CustomMessage: req.CustomMessage,
		Category:      req.Category,
		Priority:      req.Priority,
		Kind:          req.Kind,
		Status:        models.StatusPending,
		IsActive:      true,
		Channels:      models.ChannelFlags{InApp: true},
		Sound:         models.SoundSettings{Enabled: true, Type: models.SoundDefault},
		Interactions: []models.Interaction{
			{Action: models.ActionCreated, Timestamp: now},
		},
	}

	if req.Channels != nil {
		reminder.Channels = *req.Channels
	}
	if req.Sound != nil {
		reminder.Sound = *req.Sound
	}
	if req.IdleNudge != nil {
		reminder.IdleNudge = *req.IdleNudge
	}
	if req.CalendarSync != nil {
		reminder.CalendarSync = *req.CalendarSync
	}

	switch req.Kind {
	case models.KindOneOff:
		if req.Datetime == nil {
			return nil, fmt.Errorf("%w: datetime is required for a one-off reminder", ErrValidation)
		}
		if req.Datetime.Before(now) {
			return nil, fmt.Errorf("%w: datetime must be in the future", ErrValidation)
		}
		reminder.Datetime = req.Datetime

	case models.KindRecurring:
		if req.Recurrence == nil {
			return nil, fmt.Errorf("%w: recurrence is required for a recurring reminder", ErrValidation)
		}
		rec := *req.Recurrence
		if err := normalizeRecurrence(&rec); err != nil {
			return nil, err
		}
		next, ok := recurrence.Next(&rec, recurrence.Reference(&rec, now))
		if !ok {
			return nil, fmt.Errorf("%w: recurrence ends before it would ever trigger", ErrValidation)
		}
		rec.NextTrigger = &next
		reminder.Recurrence = &rec

	default:
		return nil, fmt.Errorf("%w: kind must be %q or %q", ErrValidation, models.KindOneOff, models.KindRecurring)
	}

	created, err := s.store.Insert(ctx, reminder)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	s.publishEvent(models.EventTypeReminderCreated, created, nil)
	s.notifyScheduleChange()

	return created, nil
}

// UpdateReminder merges a patch into an owned reminder. Kind is immutable;
// schedule fields are validated against it and the scheduling cursor is
// recomputed when the recurrence changes.
func (s *ReminderService) UpdateReminder(ctx context.Context, ownerID, reminderID string, patch *models.ReminderPatch) (*models.Reminder, error) {
	reminder, err := s.getOwned(ctx, ownerID, reminderID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		reminder.Title = *patch.Title
	}
	if patch.Message != nil {
		reminder.Message = *patch.Message
	}
	if patch.CustomMessage != nil {
		reminder.CustomMessage = *patch.CustomMessage
	}
	if patch.Category != nil {
		reminder.Category = *patch.Category
	}
	if patch.Priority != nil {
		reminder.Priority = *patch.Priority
	}
	if patch.Channels != nil {
		reminder.Channels = *patch.Channels
	}
	if patch.Sound != nil {
		reminder.Sound = *patch.Sound
	}
	if patch.IdleNudge != nil {
		lastNudge := reminder.IdleNudge.LastNudgeSent
		reminder.IdleNudge = *patch.IdleNudge
		reminder.IdleNudge.LastNudgeSent = lastNudge
	}
	if patch.CalendarSync != nil {
		reminder.CalendarSync = *patch.CalendarSync
	}

	if patch.Datetime != nil {
		if reminder.Kind != models.KindOneOff {
			return nil, fmt.Errorf("%w: datetime applies only to one-off reminders", ErrValidation)
		}
		if patch.Datetime.Before(time.Now()) {
			return nil, fmt.Errorf("%w: datetime must be in the future", ErrValidation)
		}
		reminder.Datetime = patch.Datetime
		// A rescheduled one-off is armed again even if it already fired.
		reminder.IsActive = true
		if reminder.Status.IsTerminal() {
			reminder.Status = models.StatusPending
		}
	}

	if patch.Recurrence != nil {
		if reminder.Kind != models.KindRecurring {
			return nil, fmt.Errorf("%w: recurrence applies only to recurring reminders", ErrValidation)
		}
		rec := *patch.Recurrence
		if err := normalizeRecurrence(&rec); err != nil {
			return nil, err
		}
		rec.LastTriggered = nil
		next, ok := recurrence.Next(&rec, recurrence.Reference(&rec, time.Now()))
		if !ok {
			return nil, fmt.Errorf("%w: recurrence ends before it would ever trigger", ErrValidation)
		}
		rec.NextTrigger = &next
		reminder.Recurrence = &rec
		if rec.Enabled {
			reminder.IsActive = true
			if reminder.Status.IsTerminal() {
				reminder.Status = models.StatusPending
			}
		}
	}

	saved, err := s.save(ctx, reminder)
	if err != nil {
		return nil, err
	}

	s.publishEvent(models.EventTypeReminderUpdated, saved, nil)
	s.notifyScheduleChange()

	return saved, nil
}

// DeleteReminder removes the document. With poll-based due detection there
// is no timer registry to clean up; the deleted record simply stops
// matching the due queries.
func (s *ReminderService) DeleteReminder(ctx context.Context, ownerID, reminderID string) error {
	objectID, err := parseID(reminderID)
	if err != nil {
		return err
	}

	reminder, err := s.getOwned(ctx, ownerID, reminderID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, objectID, ownerID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	s.publishEvent(models.EventTypeReminderDeleted, reminder, nil)
	s.notifyScheduleChange()

	return nil
}

// SnoozeReminder pushes the reminder into the snoozed state for the given
// duration. Snoozing re-arms scheduling so an already-fired one-off is
// re-triggered when the snooze expires.
func (s *ReminderService) SnoozeReminder(ctx context.Context, ownerID, reminderID string, durationMinutes int, reason string) (*models.Reminder, error) {
	if durationMinutes < 1 {
		return nil, fmt.Errorf("%w: snooze duration must be at least 1 minute", ErrValidation)
	}

	reminder, err := s.getOwned(ctx, ownerID, reminderID)
	if err != nil {
		return nil, err
	}

	if reminder.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot snooze a %s reminder", ErrConflict, reminder.Status)
	}

	now := time.Now()
	until := now.Add(time.Duration(durationMinutes) * time.Minute)

	reminder.Status = models.StatusSnoozed
	reminder.IsActive = true
	reminder.Snooze.Count++
	reminder.Snooze.LastSnoozed = &now
	reminder.Snooze.SnoozedUntil = &until
	reminder.Snooze.History = append(reminder.Snooze.History, models.SnoozeEntry{
		SnoozedAt:       now,
		DurationMinutes: durationMinutes,
		Reason:          reason,
	})
	reminder.Interactions = append(reminder.Interactions, models.Interaction{
		Action:    models.ActionSnoozed,
		Timestamp: now,
		Metadata:  map[string]any{"durationMinutes": durationMinutes, "reason": reason},
	})

	saved, err := s.save(ctx, reminder)
	if err != nil {
		return nil, err
	}

	s.publishEvent(models.EventTypeReminderSnoozed, saved, map[string]any{
		"durationMinutes": durationMinutes,
		"snoozedUntil":    until,
	})
	s.notifyScheduleChange()

	return saved, nil
}

// DismissReminder is a terminal user transition.
func (s *ReminderService) DismissReminder(ctx context.Context, ownerID, reminderID string) (*models.Reminder, error) {
	return s.closeReminder(ctx, ownerID, reminderID, models.StatusDismissed)
}

// CompleteReminder is a terminal user transition.
func (s *ReminderService) CompleteReminder(ctx context.Context, ownerID, reminderID string) (*models.Reminder, error) {
	return s.closeReminder(ctx, ownerID, reminderID, models.StatusCompleted)
}

func (s *ReminderService) closeReminder(ctx context.Context, ownerID, reminderID string, status models.ReminderStatus) (*models.Reminder, error) {
	reminder, err := s.getOwned(ctx, ownerID, reminderID)
	if err != nil {
		return nil, err
	}

	if reminder.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: reminder is already %s", ErrConflict, reminder.Status)
	}

	now := time.Now()
	reminder.Status = status
	reminder.IsActive = false

	var action models.InteractionAction
	var eventType models.EventType
	if status == models.StatusDismissed {
		action = models.ActionDismissed
		eventType = models.EventTypeReminderDismissed
		reminder.DismissedAt = &now
	} else {
		action = models.ActionCompleted
		eventType = models.EventTypeReminderCompleted
		reminder.CompletedAt = &now
	}

	reminder.Interactions = append(reminder.Interactions, models.Interaction{
		Action:    action,
		Timestamp: now,
	})

	saved, err := s.save(ctx, reminder)
	if err != nil {
		return nil, err
	}

	s.publishEvent(eventType, saved, nil)
	s.notifyScheduleChange()

	return saved, nil
}

// ManualTrigger fires the reminder outside the poll cadence, for user
// verification. The claim inside Trigger keeps a concurrent poll tick from
// double-firing the same occurrence.
func (s *ReminderService) ManualTrigger(ctx context.Context, ownerID, reminderID string) error {
	if s.dispatcher == nil {
		return fmt.Errorf("delivery dispatcher is not configured")
	}

	reminder, err := s.getOwned(ctx, ownerID, reminderID)
	if err != nil {
		return err
	}

	if reminder.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot trigger a %s reminder", ErrConflict, reminder.Status)
	}
	if reminder.Kind == models.KindOneOff && !reminder.IsActive {
		return fmt.Errorf("%w: one-off reminder has already fired", ErrConflict)
	}

	return s.Trigger(ctx, reminder)
}

func (s *ReminderService) GetReminder(ctx context.Context, ownerID, reminderID string) (*models.Reminder, error) {
	return s.getOwned(ctx, ownerID, reminderID)
}

func (s *ReminderService) ListReminders(ctx context.Context, ownerID string, page, limit int) (*models.ReminderListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	reminders, totalCount, err := s.store.FindByOwner(ctx, ownerID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}

	pageCount := int((totalCount + int64(limit) - 1) / int64(limit))

	return &models.ReminderListResult{
		Reminders:   reminders,
		TotalCount:  totalCount,
		PageCount:   pageCount,
		CurrentPage: page,
	}, nil
}

// ListActive returns the owner's reminders still in a schedulable or
// snoozed status; terminal reminders never appear here.
func (s *ReminderService) ListActive(ctx context.Context, ownerID string) ([]*models.Reminder, error) {
	reminders, err := s.store.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active reminders: %w", err)
	}
	return reminders, nil
}

func (s *ReminderService) GetInteractions(ctx context.Context, ownerID, reminderID string) ([]models.Interaction, error) {
	reminder, err := s.getOwned(ctx, ownerID, reminderID)
	if err != nil {
		return nil, err
	}
	return reminder.Interactions, nil
}

// MarkViewed appends a viewed interaction when the client surfaces a
// delivered reminder.
func (s *ReminderService) MarkViewed(ctx context.Context, ownerID, reminderID string, channel models.Channel) error {
	reminder, err := s.getOwned(ctx, ownerID, reminderID)
	if err != nil {
		return err
	}

	interaction := models.Interaction{
		Action:    models.ActionViewed,
		Channel:   channel,
		Timestamp: time.Now(),
	}
	if err := s.store.AppendInteractions(ctx, reminder.ID, []models.Interaction{interaction}); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to record view: %w", err)
	}
	return nil
}

// Trigger runs a due reminder through delivery and schedule advancement.
// It is invoked by the poller with the scheduler's own authority and by
// ManualTrigger; triggering branches on the immutable kind, never on
// status, so woken snoozed reminders take the right path.
func (s *ReminderService) Trigger(ctx context.Context, reminder *models.Reminder) error {
	switch reminder.Kind {
	case models.KindOneOff:
		return s.triggerOneOff(ctx, reminder)
	case models.KindRecurring:
		return s.triggerRecurring(ctx, reminder)
	default:
		return fmt.Errorf("reminder %s has unknown kind %q", reminder.ID.Hex(), reminder.Kind)
	}
}

// TriggerWake re-delivers a reminder whose snooze just expired. The wake
// itself was claimed by the store, so a recurring reminder is delivered
// directly without touching its scheduling cursor; a one-off goes through
// the regular claim so it is taken out of scheduling again.
func (s *ReminderService) TriggerWake(ctx context.Context, reminder *models.Reminder) error {
	switch reminder.Kind {
	case models.KindOneOff:
		return s.triggerOneOff(ctx, reminder)
	case models.KindRecurring:
		if reminder.Recurrence != nil && reminder.Recurrence.NextTrigger != nil &&
			!reminder.Recurrence.NextTrigger.After(time.Now()) {
			// A scheduled occurrence is already due; the due scan will
			// fire it, so skip the wake delivery to avoid a double.
			return nil
		}
		s.deliver(ctx, reminder)
		return nil
	default:
		return fmt.Errorf("reminder %s has unknown kind %q", reminder.ID.Hex(), reminder.Kind)
	}
}

func (s *ReminderService) triggerOneOff(ctx context.Context, reminder *models.Reminder) error {
	claimed, err := s.store.ClaimOneOff(ctx, reminder.ID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Another tick or a manual trigger already fired it.
			return nil
		}
		return fmt.Errorf("failed to claim one-off reminder: %w", err)
	}

	s.deliver(ctx, claimed)
	return nil
}

func (s *ReminderService) triggerRecurring(ctx context.Context, reminder *models.Reminder) error {
	if reminder.Recurrence == nil {
		return fmt.Errorf("recurring reminder %s has no recurrence schedule", reminder.ID.Hex())
	}

	now := time.Now()

	// The fire we are claiming becomes the reference for the advance.
	var nextPtr *time.Time
	next, ok := recurrence.Next(reminder.Recurrence, now)
	if ok {
		nextPtr = &next
	}

	claimed, err := s.store.ClaimRecurring(ctx, reminder.ID, reminder.Recurrence.NextTrigger, now, nextPtr)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Lost the claim race; the winner delivers.
			return nil
		}
		return fmt.Errorf("failed to claim recurring reminder: %w", err)
	}

	s.deliver(ctx, claimed)

	if !ok {
		s.publishEvent(models.EventTypeReminderExpired, claimed, nil)
	}

	return nil
}

// deliver fans out through the dispatcher and appends one delivered
// interaction per channel that succeeded. Channel errors were already
// logged by the dispatcher and never fail the trigger.
func (s *ReminderService) deliver(ctx context.Context, reminder *models.Reminder) {
	outcomes := s.dispatcher.Deliver(ctx, reminder)

	now := time.Now()
	var interactions []models.Interaction
	deliveredChannels := make([]models.Channel, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		deliveredChannels = append(deliveredChannels, outcome.Channel)
		interactions = append(interactions, models.Interaction{
			Action:    models.ActionDelivered,
			Channel:   outcome.Channel,
			Timestamp: now,
		})
	}

	if err := s.store.AppendInteractions(ctx, reminder.ID, interactions); err != nil {
		log.Printf("Failed to append delivered interactions for reminder %s: %v", reminder.ID.Hex(), err)
	}

	s.publishEvent(models.EventTypeReminderTriggered, reminder, map[string]any{
		"channels": deliveredChannels,
	})
}

// SendNudge broadcasts an in-app idle nudge and records it. The nudge
// stream never changes status.
func (s *ReminderService) SendNudge(ctx context.Context, reminder *models.Reminder) error {
	if err := s.dispatcher.Nudge(ctx, reminder); err != nil {
		return fmt.Errorf("failed to broadcast nudge: %w", err)
	}

	if err := s.store.MarkNudged(ctx, reminder.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to record nudge: %w", err)
	}

	return nil
}

// DeactivateOwner unschedules every reminder of a deleted user.
func (s *ReminderService) DeactivateOwner(ctx context.Context, ownerID string) error {
	count, err := s.store.DeactivateByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if count > 0 {
		log.Printf("Deactivated %d reminders for deleted owner %s", count, ownerID)
	}
	return nil
}

func (s *ReminderService) getOwned(ctx context.Context, ownerID, reminderID string) (*models.Reminder, error) {
	objectID, err := parseID(reminderID)
	if err != nil {
		return nil, err
	}

	reminder, err := s.store.FindByIDAndOwner(ctx, objectID, ownerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Ownership failures are reported as not-found so existence
			// never leaks across owners.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}

	return reminder, nil
}

func (s *ReminderService) save(ctx context.Context, reminder *models.Reminder) (*models.Reminder, error) {
	saved, err := s.store.Save(ctx, reminder)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: reminder was modified concurrently", ErrConflict)
		}
		return nil, fmt.Errorf("failed to save reminder: %w", err)
	}
	return saved, nil
}

func (s *ReminderService) publishEvent(eventType models.EventType, reminder *models.Reminder, payload map[string]any) {
	if s.publisher == nil {
		return
	}

	reminderEvent := &models.ReminderEvent{
		EventType:  eventType,
		ReminderID: reminder.ID.Hex(),
		OwnerID:    reminder.OwnerID,
		Timestamp:  time.Now(),
		Payload:    payload,
	}

	if err := s.publisher.PublishReminderEvent(reminderEvent); err != nil {
		log.Printf("Failed to publish %s event for reminder %s: %v", eventType, reminderEvent.ReminderID, err)
	}
}

func parseID(reminderID string) (bson.ObjectID, error) {
	if reminderID == "" {
		return bson.ObjectID{}, fmt.Errorf("%w: reminder ID is required", ErrValidation)
	}
	objectID, err := bson.ObjectIDFromHex(reminderID)
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("%w: invalid reminder ID format", ErrValidation)
	}
	return objectID, nil
}

// normalizeRecurrence applies defaults and validates the schedule fields.
func normalizeRecurrence(rec *models.Recurrence) error {
	if !rec.Frequency.IsValid() {
		return fmt.Errorf("%w: unknown recurrence frequency %q", ErrValidation, rec.Frequency)
	}
	if rec.Interval < 1 {
		rec.Interval = 1
	}
	if rec.TimeOfDay != "" {
		if _, _, err := recurrence.ParseTimeOfDay(rec.TimeOfDay); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	for _, day := range rec.DaysOfWeek {
		if day < 0 || day > 6 {
			return fmt.Errorf("%w: daysOfWeek values must be 0-6", ErrValidation)
		}
	}
	return nil
}
