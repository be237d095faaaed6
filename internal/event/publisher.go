package event

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"reminder-service/internal/models"

	"github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	PublishReminderEvent(event *models.ReminderEvent) error
	SendEmail(ownerID, subject, html string) error
	SendPush(ownerID, title, body string, data map[string]any) error
	Close() error
}

// EventPublisher fans messages out over two topic exchanges: lifecycle
// events for other services, and delivery commands consumed by the
// notification service, which resolves the owner's address and device
// tokens.
type EventPublisher struct {
	conn                 *amqp091.Connection
	channel              *amqp091.Channel
	eventExchange        string
	notificationExchange string
	enabled              bool
}

func NewEventPublisher(rabbitURI string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{
			eventExchange:        "reminder.events",
			notificationExchange: "notification.events",
			enabled:              false,
		}, nil
	}

	// Connect to RabbitMQ
	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	// Create a channel
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	publisher := &EventPublisher{
		conn:                 conn,
		channel:              channel,
		eventExchange:        "reminder.events",
		notificationExchange: "notification.events",
		enabled:              true,
	}

	// Declare the exchanges
	for _, exchange := range []string{publisher.eventExchange, publisher.notificationExchange} {
		err = channel.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	log.Printf("Event publisher initialized with exchanges: %s, %s",
		publisher.eventExchange, publisher.notificationExchange)

	return publisher, nil
}

func (p *EventPublisher) PublishReminderEvent(event *models.ReminderEvent) error {
	if !p.enabled {
		log.Printf("Event publishing disabled, skipping event: %s", event.EventType)
		return nil
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Routing key mirrors the event type, e.g. reminder.triggered
	routingKey := string(event.EventType)

	err = p.channel.Publish(
		p.eventExchange, // exchange
		routingKey,      // routing key
		false,           // mandatory
		false,           // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         eventData,
			Headers: amqp091.Table{
				"event_type":  string(event.EventType),
				"reminder_id": event.ReminderID,
				"owner_id":    event.OwnerID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Printf("Published event: %s for reminder: %s", event.EventType, event.ReminderID)
	return nil
}

// SendEmail hands an email command to the notification service. Commands
// carry the owner ID, not an address; address resolution happens there.
func (p *EventPublisher) SendEmail(ownerID, subject, html string) error {
	command := models.EmailCommand{
		OwnerID:   ownerID,
		Subject:   subject,
		HTML:      html,
		Timestamp: time.Now(),
	}
	return p.publishNotification("notification.email.send", ownerID, command)
}

// SendPush hands a push command to the notification service.
func (p *EventPublisher) SendPush(ownerID, title, body string, data map[string]any) error {
	command := models.PushCommand{
		OwnerID:   ownerID,
		Title:     title,
		Body:      body,
		Data:      data,
		Timestamp: time.Now(),
	}
	return p.publishNotification("notification.push.send", ownerID, command)
}

func (p *EventPublisher) publishNotification(routingKey, ownerID string, command any) error {
	if !p.enabled {
		log.Printf("Event publishing disabled, skipping notification command: %s", routingKey)
		return nil
	}

	commandData, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("failed to marshal notification command: %w", err)
	}

	err = p.channel.Publish(
		p.notificationExchange, // exchange
		routingKey,             // routing key
		false,                  // mandatory
		false,                  // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         commandData,
			Headers: amqp091.Table{
				"owner_id": ownerID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish notification command: %w", err)
	}

	return nil
}

func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}

	return nil
}

type NotificationCommand struct {
	RoutingKey string
	OwnerID    string
	Body       any
}

type MockPublisher struct {
	Events   []models.ReminderEvent
	Commands []NotificationCommand
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Events:   make([]models.ReminderEvent, 0),
		Commands: make([]NotificationCommand, 0),
	}
}

func (m *MockPublisher) PublishReminderEvent(event *models.ReminderEvent) error {
	m.Events = append(m.Events, *event)
	return nil
}

func (m *MockPublisher) SendEmail(ownerID, subject, html string) error {
	m.Commands = append(m.Commands, NotificationCommand{
		RoutingKey: "notification.email.send",
		OwnerID:    ownerID,
		Body:       models.EmailCommand{OwnerID: ownerID, Subject: subject, HTML: html},
	})
	return nil
}

func (m *MockPublisher) SendPush(ownerID, title, body string, data map[string]any) error {
	m.Commands = append(m.Commands, NotificationCommand{
		RoutingKey: "notification.push.send",
		OwnerID:    ownerID,
		Body:       models.PushCommand{OwnerID: ownerID, Title: title, Body: body, Data: data},
	})
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

func (m *MockPublisher) GetEvents() []models.ReminderEvent {
	return m.Events
}

func (m *MockPublisher) ClearEvents() {
	m.Events = make([]models.ReminderEvent, 0)
	m.Commands = make([]NotificationCommand, 0)
}
