package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/eventdesk/api/internal/services"
)

// PubSubPublisher publishes order events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubPublisher)(nil)

// NewPubSubPublisher constructs a Pub/Sub backed order event publisher. When the topic has
// message ordering enabled, events of one order are delivered in publish order.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent blocks until the server acknowledges the message.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	envelope := NewEnvelope(event)
	data, err := p.marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: envelope.attributes(),
	}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = envelope.OrderID
	}

	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		if msg.OrderingKey != "" {
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Close flushes pending messages and stops the topic's publish goroutines.
func (p *PubSubPublisher) Close(context.Context) error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	return nil
}
