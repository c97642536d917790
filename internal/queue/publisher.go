package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, event ImportEvent) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	publishing, err := buildPublishing(event, p.now())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, EventsExchange, RoutingKeyImported, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", RoutingKeyImported, err)
	}

	return nil
}

func buildPublishing(event ImportEvent, now time.Time) (amqp.Publishing, error) {
	if err := event.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid import event: %w", err)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now.UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal import event: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     event.OccurredAt,
		MessageId:     event.RunID,
		CorrelationId: event.CorrelationID,
		Type:          RoutingKeyImported,
		Body:          payload,
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
