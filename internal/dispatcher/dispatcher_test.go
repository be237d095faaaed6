package dispatcher

import (
	"context"
	"fmt"
	"testing"

	"reminder-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type stubBroadcaster struct {
	events   []string
	payloads []any
	err      error
}

func (b *stubBroadcaster) BroadcastToOwner(_ context.Context, _ string, event string, payload any) error {
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, event)
	b.payloads = append(b.payloads, payload)
	return nil
}

type stubEmail struct {
	subjects []string
	err      error
}

func (e *stubEmail) SendEmail(_, subject, _ string) error {
	if e.err != nil {
		return e.err
	}
	e.subjects = append(e.subjects, subject)
	return nil
}

type stubPush struct {
	titles []string
	err    error
}

func (p *stubPush) SendPush(_, title, _ string, _ map[string]any) error {
	if p.err != nil {
		return p.err
	}
	p.titles = append(p.titles, title)
	return nil
}

func testReminder(channels models.ChannelFlags) *models.Reminder {
	return &models.Reminder{
		ID:       bson.NewObjectID(),
		OwnerID:  "user-1",
		Title:    "stretch",
		Message:  "stand up and stretch",
		Channels: channels,
	}
}

func TestDeliverEnabledChannelsOnly(t *testing.T) {
	broadcast := &stubBroadcaster{}
	email := &stubEmail{}
	push := &stubPush{}
	d := New(broadcast, email, push)

	outcomes := d.Deliver(context.Background(), testReminder(models.ChannelFlags{InApp: true, Push: true}))

	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			t.Errorf("channel %s failed: %v", outcome.Channel, outcome.Err)
		}
	}
	if len(email.subjects) != 0 {
		t.Error("disabled email channel must not send")
	}
	if len(broadcast.events) != 1 || len(push.titles) != 1 {
		t.Errorf("broadcasts = %d, pushes = %d, want 1 each", len(broadcast.events), len(push.titles))
	}
}

func TestDeliverIsolatesFailures(t *testing.T) {
	broadcast := &stubBroadcaster{err: fmt.Errorf("redis gone")}
	email := &stubEmail{}
	push := &stubPush{}
	d := New(broadcast, email, push)

	outcomes := d.Deliver(context.Background(), testReminder(models.ChannelFlags{InApp: true, Email: true, Push: true}))

	byChannel := map[models.Channel]error{}
	for _, outcome := range outcomes {
		byChannel[outcome.Channel] = outcome.Err
	}
	if byChannel[models.ChannelInApp] == nil {
		t.Error("expected the in-app outcome to carry the error")
	}
	if byChannel[models.ChannelEmail] != nil || byChannel[models.ChannelPush] != nil {
		t.Error("other channels must still deliver")
	}
	if len(email.subjects) != 1 || len(push.titles) != 1 {
		t.Errorf("email = %d, push = %d, want 1 each", len(email.subjects), len(push.titles))
	}
}

func TestDeliverAllChannelsDisabled(t *testing.T) {
	d := New(&stubBroadcaster{}, &stubEmail{}, &stubPush{})

	outcomes := d.Deliver(context.Background(), testReminder(models.ChannelFlags{}))
	if len(outcomes) != 0 {
		t.Errorf("outcomes = %d, want none", len(outcomes))
	}
}

func TestDeliverMissingCapability(t *testing.T) {
	d := New(&stubBroadcaster{}, nil, nil)

	outcomes := d.Deliver(context.Background(), testReminder(models.ChannelFlags{Email: true}))
	if len(outcomes) != 1 || outcomes[0].Err == nil {
		t.Errorf("outcomes = %+v, want one errored email outcome", outcomes)
	}
}

func TestNudgeForcesLowPriority(t *testing.T) {
	broadcast := &stubBroadcaster{}
	d := New(broadcast, nil, nil)

	reminder := testReminder(models.ChannelFlags{InApp: true})
	reminder.Priority = "high"

	if err := d.Nudge(context.Background(), reminder); err != nil {
		t.Fatalf("Nudge: %v", err)
	}

	if len(broadcast.events) != 1 || broadcast.events[0] != "reminder.nudge" {
		t.Fatalf("events = %v, want a single reminder.nudge", broadcast.events)
	}
	payload, ok := broadcast.payloads[0].(*models.InAppNotification)
	if !ok {
		t.Fatalf("payload type = %T, want *models.InAppNotification", broadcast.payloads[0])
	}
	if !payload.Nudge || payload.Priority != "low" {
		t.Errorf("payload = nudge %v priority %q, want nudge with low priority", payload.Nudge, payload.Priority)
	}
}

func TestCustomMessagePreferred(t *testing.T) {
	broadcast := &stubBroadcaster{}
	d := New(broadcast, nil, nil)

	reminder := testReminder(models.ChannelFlags{InApp: true})
	reminder.CustomMessage = "you said you would"

	d.Deliver(context.Background(), reminder)

	payload := broadcast.payloads[0].(*models.InAppNotification)
	if payload.Message != "you said you would" {
		t.Errorf("message = %q, want the custom message", payload.Message)
	}
}
