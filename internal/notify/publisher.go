// Package notify publishes status-transition events for the customer
// notification pipeline. Delivery (email/SMS/push) happens downstream; this
// side is fire-and-forget.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"backend-fairfieldcars/internal/tracking"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "booking.events"

// channel is the slice of amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type statusMessage struct {
	BookingID  string          `json:"booking_id"`
	Status     tracking.Status `json:"status"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type Publisher struct {
	ch channel
}

func Connect(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

func NewPublisher(ch channel) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// StatusChanged publishes one transition event. Failures are logged and
// dropped; a missed notification never affects the tracking session.
func (p *Publisher) StatusChanged(ctx context.Context, bookingID string, status tracking.Status) {
	body, err := json.Marshal(statusMessage{
		BookingID:  bookingID,
		Status:     status,
		OccurredAt: time.Now(),
	})
	if err != nil {
		log.Printf("notify: marshal status event %s: %v", bookingID, err)
		return
	}

	err = p.ch.PublishWithContext(
		ctx,
		exchangeName,
		"booking.status."+bookingID,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		log.Printf("notify: publish status event %s: %v", bookingID, err)
	}
}
