// Package mq forwards committed lifecycle events to a RabbitMQ topic
// exchange, routed by event topic (booking.created, oven.maintenance, ...).
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"ovenbook/internal/events"
	"ovenbook/internal/model"
)

// Envelope is the JSON body of a published message.
type Envelope struct {
	Topic      string              `json:"topic"`
	OccurredAt time.Time           `json:"occurred_at"`
	Booking    *model.Booking      `json:"booking,omitempty"`
	Event      *model.BookingEvent `json:"event,omitempty"`
	Oven       *model.Oven         `json:"oven,omitempty"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   zerolog.Logger
}

func NewPublisher(url, exchange string, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		logger:   logger.With().Str("component", "mq").Logger(),
	}, nil
}

// BuildPublishing renders an event as an AMQP message.
func BuildPublishing(e events.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(Envelope{
		Topic:      e.Type,
		OccurredAt: e.OccurredAt.UTC(),
		Booking:    e.Booking,
		Event:      e.Record,
		Oven:       e.Oven,
	})
	if err != nil {
		return amqp.Publishing{}, err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt.UTC(),
		Type:         e.Type,
		Body:         body,
	}
	if e.Record != nil {
		msg.MessageId = e.Record.ID
	}
	return msg, nil
}

// HandleEvent publishes e with its topic as routing key.
func (p *Publisher) HandleEvent(ctx context.Context, e events.Event) error {
	msg, err := BuildPublishing(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	p.logger.Debug().Str("routing_key", e.Type).Msg("event published")
	return nil
}

// Subscribe forwards every bus event to the exchange.
func (p *Publisher) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(p.HandleEvent)
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
