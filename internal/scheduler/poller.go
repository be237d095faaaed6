package scheduler

import (
	"context"
	"log"
	"time"

	"reminder-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store is the slice of the reminder store the poller scans.
type Store interface {
	DueOneOff(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	DueRecurring(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	ExpiredSnoozes(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	WakeSnoozed(ctx context.Context, id bson.ObjectID, now time.Time) (*models.Reminder, error)
}

// Engine fires the reminders the poller finds due.
type Engine interface {
	Trigger(ctx context.Context, reminder *models.Reminder) error
	TriggerWake(ctx context.Context, reminder *models.Reminder) error
}

// Poller drives due detection off a fixed-interval scan. Ticks run
// synchronously in the loop goroutine, so at most one scan is in flight
// and a slow tick delays the next one instead of overlapping it.
type Poller struct {
	store    Store
	engine   Engine
	interval time.Duration
	notify   chan struct{}
}

func NewPoller(store Store, engine Engine, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		store:    store,
		engine:   engine,
		interval: interval,
		notify:   make(chan struct{}, 1),
	}
}

// Notify requests an immediate re-scan, coalescing with any pending
// request. Mutating operations call this so a reminder created due in
// the next few seconds does not wait out a full interval.
func (p *Poller) Notify() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Start blocks until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	log.Printf("Reminder poller started with interval %s", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Catch anything already due at startup.
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Reminder poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		case <-p.notify:
			p.tick(ctx)
		}
	}
}

// tick runs the three scans. Per-reminder failures are logged and the
// scan moves on; a failed scan never blocks the other scans.
func (p *Poller) tick(ctx context.Context) {
	now := time.Now()

	p.scanSnoozes(ctx, now)
	p.scanDue(ctx, now)
}

func (p *Poller) scanSnoozes(ctx context.Context, now time.Time) {
	expired, err := p.store.ExpiredSnoozes(ctx, now)
	if err != nil {
		log.Printf("Snooze scan failed: %v", err)
		return
	}

	for _, reminder := range expired {
		woken, err := p.store.WakeSnoozed(ctx, reminder.ID, now)
		if err != nil {
			// Lost the wake to another tick or the user re-snoozed.
			continue
		}
		if err := p.engine.TriggerWake(ctx, woken); err != nil {
			log.Printf("Failed to re-trigger woken reminder %s: %v", woken.ID.Hex(), err)
		}
	}
}

func (p *Poller) scanDue(ctx context.Context, now time.Time) {
	oneOffs, err := p.store.DueOneOff(ctx, now)
	if err != nil {
		log.Printf("One-off scan failed: %v", err)
	} else {
		p.fire(ctx, oneOffs)
	}

	recurring, err := p.store.DueRecurring(ctx, now)
	if err != nil {
		log.Printf("Recurring scan failed: %v", err)
	} else {
		p.fire(ctx, recurring)
	}
}

func (p *Poller) fire(ctx context.Context, reminders []*models.Reminder) {
	for _, reminder := range reminders {
		if err := p.engine.Trigger(ctx, reminder); err != nil {
			log.Printf("Failed to trigger reminder %s: %v", reminder.ID.Hex(), err)
		}
	}
}
