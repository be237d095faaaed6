package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"reminder-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type scanStore struct {
	mu       sync.Mutex
	oneOffs  []*models.Reminder
	recurs   []*models.Reminder
	snoozed  []*models.Reminder
	scanErr  error
	wakeErrs map[bson.ObjectID]error
	scans    int
}

func (s *scanStore) DueOneOff(_ context.Context, _ time.Time) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return s.oneOffs, nil
}

func (s *scanStore) DueRecurring(_ context.Context, _ time.Time) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return s.recurs, nil
}

func (s *scanStore) ExpiredSnoozes(_ context.Context, _ time.Time) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return s.snoozed, nil
}

func (s *scanStore) WakeSnoozed(_ context.Context, id bson.ObjectID, _ time.Time) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.wakeErrs[id]; ok {
		return nil, err
	}
	for _, reminder := range s.snoozed {
		if reminder.ID == id {
			woken := *reminder
			woken.Status = models.StatusActive
			return &woken, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s *scanStore) scanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}

type recordingEngine struct {
	mu        sync.Mutex
	triggered []bson.ObjectID
	woken     []bson.ObjectID
	failOn    map[bson.ObjectID]error
}

func (e *recordingEngine) Trigger(_ context.Context, reminder *models.Reminder) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.failOn[reminder.ID]; ok {
		return err
	}
	e.triggered = append(e.triggered, reminder.ID)
	return nil
}

func (e *recordingEngine) TriggerWake(_ context.Context, reminder *models.Reminder) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.woken = append(e.woken, reminder.ID)
	return nil
}

func (e *recordingEngine) triggeredCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.triggered)
}

func reminderWithID(kind models.ReminderKind) *models.Reminder {
	return &models.Reminder{
		ID:       bson.NewObjectID(),
		OwnerID:  "user-1",
		Title:    "due",
		Kind:     kind,
		Status:   models.StatusPending,
		IsActive: true,
	}
}

func TestTickFiresDueReminders(t *testing.T) {
	oneOff := reminderWithID(models.KindOneOff)
	recurring := reminderWithID(models.KindRecurring)

	store := &scanStore{
		oneOffs: []*models.Reminder{oneOff},
		recurs:  []*models.Reminder{recurring},
	}
	engine := &recordingEngine{}

	poller := NewPoller(store, engine, time.Minute)
	poller.tick(context.Background())

	if len(engine.triggered) != 2 {
		t.Fatalf("triggered = %d reminders, want 2", len(engine.triggered))
	}
}

func TestTickContinuesPastItemFailure(t *testing.T) {
	first := reminderWithID(models.KindOneOff)
	second := reminderWithID(models.KindOneOff)

	store := &scanStore{oneOffs: []*models.Reminder{first, second}}
	engine := &recordingEngine{
		failOn: map[bson.ObjectID]error{first.ID: fmt.Errorf("store unavailable")},
	}

	poller := NewPoller(store, engine, time.Minute)
	poller.tick(context.Background())

	if len(engine.triggered) != 1 || engine.triggered[0] != second.ID {
		t.Errorf("triggered = %v, want only the second reminder", engine.triggered)
	}
}

func TestTickWakesExpiredSnoozes(t *testing.T) {
	snoozed := reminderWithID(models.KindOneOff)
	snoozed.Status = models.StatusSnoozed
	lost := reminderWithID(models.KindOneOff)
	lost.Status = models.StatusSnoozed

	store := &scanStore{
		snoozed:  []*models.Reminder{snoozed, lost},
		wakeErrs: map[bson.ObjectID]error{lost.ID: mongo.ErrNoDocuments},
	}
	engine := &recordingEngine{}

	poller := NewPoller(store, engine, time.Minute)
	poller.tick(context.Background())

	if len(engine.woken) != 1 || engine.woken[0] != snoozed.ID {
		t.Errorf("woken = %v, want only the claimed snooze", engine.woken)
	}
}

func TestTickSurvivesScanError(t *testing.T) {
	store := &scanStore{scanErr: fmt.Errorf("connection reset")}
	engine := &recordingEngine{}

	poller := NewPoller(store, engine, time.Minute)
	poller.tick(context.Background())

	if len(engine.triggered) != 0 || len(engine.woken) != 0 {
		t.Error("nothing should fire when every scan fails")
	}
}

func TestNotifyTriggersImmediateScan(t *testing.T) {
	store := &scanStore{}
	engine := &recordingEngine{}

	poller := NewPoller(store, engine, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	// Wait for the startup scan.
	deadline := time.After(2 * time.Second)
	for store.scanCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for startup scan")
		case <-time.After(10 * time.Millisecond):
		}
	}

	poller.Notify()
	for store.scanCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for notified scan")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestNotifyNeverBlocks(t *testing.T) {
	poller := NewPoller(&scanStore{}, &recordingEngine{}, time.Hour)
	for i := 0; i < 10; i++ {
		poller.Notify()
	}
}

func TestNudgeEligibility(t *testing.T) {
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)

	tests := []struct {
		name     string
		reminder *models.Reminder
		want     bool
	}{
		{
			name: "idle past threshold, never nudged",
			reminder: &models.Reminder{
				IdleNudge:    models.IdleNudge{Enabled: true},
				Interactions: []models.Interaction{{Action: models.ActionDelivered, Timestamp: old}},
			},
			want: true,
		},
		{
			name: "recent interaction resets the idle clock",
			reminder: &models.Reminder{
				IdleNudge: models.IdleNudge{Enabled: true},
				Interactions: []models.Interaction{
					{Action: models.ActionDelivered, Timestamp: old},
					{Action: models.ActionViewed, Timestamp: recent},
				},
			},
			want: false,
		},
		{
			name: "nudged too recently",
			reminder: &models.Reminder{
				IdleNudge:    models.IdleNudge{Enabled: true, LastNudgeSent: &recent},
				Interactions: []models.Interaction{{Action: models.ActionDelivered, Timestamp: old}},
			},
			want: false,
		},
		{
			name: "nudge interval elapsed",
			reminder: &models.Reminder{
				IdleNudge:    models.IdleNudge{Enabled: true, NudgeIntervalMinutes: 30, LastNudgeSent: &old},
				Interactions: []models.Interaction{{Action: models.ActionDelivered, Timestamp: old}},
			},
			want: true,
		},
		{
			name: "custom threshold not yet reached",
			reminder: &models.Reminder{
				IdleNudge:    models.IdleNudge{Enabled: true, IdleThresholdMinutes: 180},
				Interactions: []models.Interaction{{Action: models.ActionDelivered, Timestamp: old}},
			},
			want: false,
		},
		{
			name: "no interactions at all",
			reminder: &models.Reminder{
				IdleNudge: models.IdleNudge{Enabled: true},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nudgeEligible(tt.reminder, now); got != tt.want {
				t.Errorf("nudgeEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

type nudgeStore struct {
	candidates []*models.Reminder
}

func (s *nudgeStore) NudgeCandidates(_ context.Context) ([]*models.Reminder, error) {
	return s.candidates, nil
}

type recordingNudger struct {
	nudged []bson.ObjectID
}

func (n *recordingNudger) SendNudge(_ context.Context, reminder *models.Reminder) error {
	n.nudged = append(n.nudged, reminder.ID)
	return nil
}

func TestNudgeTickThrottles(t *testing.T) {
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)

	idle := reminderWithID(models.KindOneOff)
	idle.IdleNudge = models.IdleNudge{Enabled: true}
	idle.Interactions = []models.Interaction{{Action: models.ActionDelivered, Timestamp: old}}

	fresh := reminderWithID(models.KindOneOff)
	fresh.IdleNudge = models.IdleNudge{Enabled: true}
	fresh.Interactions = []models.Interaction{{Action: models.ActionDelivered, Timestamp: recent}}

	store := &nudgeStore{candidates: []*models.Reminder{idle, fresh}}
	nudger := &recordingNudger{}

	poller := NewNudgePoller(store, nudger, time.Minute)
	poller.tick(context.Background())

	if len(nudger.nudged) != 1 || nudger.nudged[0] != idle.ID {
		t.Errorf("nudged = %v, want only the idle reminder", nudger.nudged)
	}
}
