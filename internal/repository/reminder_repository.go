package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reminder-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrConflict is returned when an optimistic version check fails because the
// document was modified by another writer.
var ErrConflict = errors.New("reminder was modified concurrently")

var schedulableStatuses = []models.ReminderStatus{models.StatusPending, models.StatusActive}

type ReminderRepository struct {
	collection *mongo.Collection
	mu         *sync.Mutex
}

func NewReminderRepository(db *mongo.Database) *ReminderRepository {
	return &ReminderRepository{
		collection: db.Collection("Reminder"),
		mu:         &sync.Mutex{},
	}
}

func (r *ReminderRepository) Insert(ctx context.Context, reminder *models.Reminder) (*models.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reminder.ID.IsZero() {
		reminder.ID = bson.NewObjectID()
	}

	currentTime := int(time.Now().Unix())
	if reminder.Metadata.CreatedAt == 0 {
		reminder.Metadata.CreatedAt = currentTime
	}
	reminder.Metadata.UpdatedAt = currentTime

	_, err := r.collection.InsertOne(ctx, reminder)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reminder: %w", err)
	}
	return reminder, nil
}

func (r *ReminderRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&reminder)
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// FindByIDAndOwner scopes the lookup by owner so that a foreign reminder is
// indistinguishable from a missing one.
func (r *ReminderRepository) FindByIDAndOwner(ctx context.Context, id bson.ObjectID, ownerID string) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "ownerId": ownerID}).Decode(&reminder)
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

func (r *ReminderRepository) FindByOwner(ctx context.Context, ownerID string, page, limit int) ([]*models.Reminder, int64, error) {
	filter := bson.M{"ownerId": ownerID}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count reminders: %w", err)
	}

	opts := options.Find()
	opts.SetSort(bson.M{"metadata.createdAt": -1})
	opts.SetSkip(int64((page - 1) * limit))
	opts.SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var reminders []*models.Reminder
	if err = cursor.All(ctx, &reminders); err != nil {
		return nil, 0, fmt.Errorf("failed to decode reminders: %w", err)
	}

	return reminders, totalCount, nil
}

func (r *ReminderRepository) FindActiveByOwner(ctx context.Context, ownerID string) ([]*models.Reminder, error) {
	filter := bson.M{
		"ownerId": ownerID,
		"status": bson.M{"$in": []models.ReminderStatus{
			models.StatusPending, models.StatusActive, models.StatusSnoozed,
		}},
	}

	opts := options.Find()
	opts.SetSort(bson.M{"metadata.createdAt": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find active reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var reminders []*models.Reminder
	if err = cursor.All(ctx, &reminders); err != nil {
		return nil, fmt.Errorf("failed to decode active reminders: %w", err)
	}

	return reminders, nil
}

// Save replaces the document guarded by its version: the write only lands if
// no other writer has touched the reminder since it was read.
func (r *ReminderRepository) Save(ctx context.Context, reminder *models.Reminder) (*models.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previousVersion := reminder.Version
	reminder.Version = previousVersion + 1
	reminder.Metadata.UpdatedAt = int(time.Now().Unix())

	filter := bson.M{"_id": reminder.ID, "version": previousVersion}
	update := bson.M{"$set": reminder}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Reminder
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err != nil {
		reminder.Version = previousVersion
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Distinguish a missing document from a lost version race.
			exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": reminder.ID})
			if countErr == nil && exists > 0 {
				return nil, ErrConflict
			}
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to save reminder: %w", err)
	}

	return &updated, nil
}

func (r *ReminderRepository) Delete(ctx context.Context, id bson.ObjectID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "ownerId": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// DueOneOff returns one-off reminders whose datetime has arrived.
func (r *ReminderRepository) DueOneOff(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	return r.findDue(ctx, bson.M{
		"kind":     models.KindOneOff,
		"isActive": true,
		"status":   bson.M{"$in": schedulableStatuses},
		"datetime": bson.M{"$ne": nil, "$lte": now},
	})
}

// DueRecurring returns recurring reminders whose scheduling cursor has
// arrived.
func (r *ReminderRepository) DueRecurring(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	return r.findDue(ctx, bson.M{
		"kind":                   models.KindRecurring,
		"isActive":               true,
		"status":                 bson.M{"$in": schedulableStatuses},
		"recurrence.enabled":     true,
		"recurrence.nextTrigger": bson.M{"$ne": nil, "$lte": now},
	})
}

// ExpiredSnoozes returns snoozed reminders whose snooze window has passed.
func (r *ReminderRepository) ExpiredSnoozes(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	return r.findDue(ctx, bson.M{
		"status":              models.StatusSnoozed,
		"isActive":            true,
		"snooze.snoozedUntil": bson.M{"$ne": nil, "$lte": now},
	})
}

// NudgeCandidates returns reminders with idle nudging enabled that are still
// in the active status. Interval throttling happens at the caller since it
// depends on per-document settings.
func (r *ReminderRepository) NudgeCandidates(ctx context.Context) ([]*models.Reminder, error) {
	return r.findDue(ctx, bson.M{
		"idleNudge.enabled": true,
		"status":            models.StatusActive,
	})
}

func (r *ReminderRepository) findDue(ctx context.Context, filter bson.M) ([]*models.Reminder, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var reminders []*models.Reminder
	if err = cursor.All(ctx, &reminders); err != nil {
		return nil, fmt.Errorf("failed to decode reminders: %w", err)
	}

	return reminders, nil
}

// ClaimOneOff atomically takes a due one-off out of scheduling. The filter
// re-asserts isActive so only one caller can win; everyone else gets
// mongo.ErrNoDocuments and must skip delivery.
func (r *ReminderRepository) ClaimOneOff(ctx context.Context, id bson.ObjectID) (*models.Reminder, error) {
	filter := bson.M{
		"_id":      id,
		"kind":     models.KindOneOff,
		"isActive": true,
		"status":   bson.M{"$in": schedulableStatuses},
	}
	update := bson.M{
		"$set": bson.M{
			"isActive":           false,
			"status":             models.StatusActive,
			"metadata.updatedAt": int(time.Now().Unix()),
		},
		"$inc": bson.M{"version": 1},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var claimed models.Reminder
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&claimed); err != nil {
		return nil, err
	}
	return &claimed, nil
}

// ClaimRecurring atomically advances the scheduling cursor from its observed
// value. A concurrent poll tick or manual trigger that read the same cursor
// loses the race and gets mongo.ErrNoDocuments. A nil next expires the
// reminder instead of advancing it.
func (r *ReminderRepository) ClaimRecurring(ctx context.Context, id bson.ObjectID, observedNext *time.Time, firedAt time.Time, next *time.Time) (*models.Reminder, error) {
	filter := bson.M{
		"_id":                    id,
		"kind":                   models.KindRecurring,
		"isActive":               true,
		"status":                 bson.M{"$in": schedulableStatuses},
		"recurrence.nextTrigger": observedNext,
	}

	set := bson.M{
		"recurrence.lastTriggered": firedAt,
		"metadata.updatedAt":       int(time.Now().Unix()),
	}
	if next != nil {
		set["recurrence.nextTrigger"] = *next
		set["status"] = models.StatusActive
	} else {
		set["recurrence.nextTrigger"] = nil
		set["status"] = models.StatusExpired
		set["isActive"] = false
	}

	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var claimed models.Reminder
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&claimed); err != nil {
		return nil, err
	}
	return &claimed, nil
}

// WakeSnoozed flips an expired snooze back to active. The snoozedUntil guard
// keeps a tick from waking a reminder the user just re-snoozed.
func (r *ReminderRepository) WakeSnoozed(ctx context.Context, id bson.ObjectID, now time.Time) (*models.Reminder, error) {
	filter := bson.M{
		"_id":                 id,
		"status":              models.StatusSnoozed,
		"isActive":            true,
		"snooze.snoozedUntil": bson.M{"$ne": nil, "$lte": now},
	}
	update := bson.M{
		"$set": bson.M{
			"status":             models.StatusActive,
			"metadata.updatedAt": int(time.Now().Unix()),
		},
		"$inc": bson.M{"version": 1},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var woken models.Reminder
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&woken); err != nil {
		return nil, err
	}
	return &woken, nil
}

// AppendInteractions pushes audit entries onto the interaction log.
func (r *ReminderRepository) AppendInteractions(ctx context.Context, id bson.ObjectID, interactions []models.Interaction) error {
	if len(interactions) == 0 {
		return nil
	}

	update := bson.M{
		"$push": bson.M{"interactions": bson.M{"$each": interactions}},
		"$set":  bson.M{"metadata.updatedAt": int(time.Now().Unix())},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to append interactions: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkNudged records the nudge send time and its audit entry in one write.
func (r *ReminderRepository) MarkNudged(ctx context.Context, id bson.ObjectID, at time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"idleNudge.lastNudgeSent": at,
			"metadata.updatedAt":      int(time.Now().Unix()),
		},
		"$push": bson.M{"interactions": models.Interaction{
			Action:    models.ActionNudged,
			Channel:   models.ChannelInApp,
			Timestamp: at,
		}},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark nudge sent: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// DeactivateByOwner unschedules every reminder belonging to an owner; used
// when the owning user account is deleted.
func (r *ReminderRepository) DeactivateByOwner(ctx context.Context, ownerID string) (int64, error) {
	update := bson.M{
		"$set": bson.M{
			"isActive":           false,
			"metadata.updatedAt": int(time.Now().Unix()),
		},
	}

	result, err := r.collection.UpdateMany(ctx, bson.M{"ownerId": ownerID}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate reminders for owner %s: %w", ownerID, err)
	}
	return result.ModifiedCount, nil
}

func (r *ReminderRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}, {Key: "isActive", Value: 1}, {Key: "datetime", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "recurrence.nextTrigger", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "snooze.snoozedUntil", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "idleNudge.enabled", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "metadata.createdAt", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
