package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/propagation"

	"github.com/eventdesk/api/internal/services"
)

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher publishes order events to a Kafka topic keyed by order ID, so every event for
// one order lands on the same partition.
type KafkaPublisher struct {
	client  producer
	topic   string
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*KafkaPublisher)(nil)

// KafkaOptions configures the Kafka client.
type KafkaOptions struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewKafkaPublisher dials the brokers and returns a publisher producing to opts.Topic.
func NewKafkaPublisher(opts KafkaOptions) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(opts.Brokers))
	for _, b := range opts.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka event publisher: at least one broker is required")
	}
	topic := strings.TrimSpace(opts.Topic)
	if topic == "" {
		return nil, errors.New("kafka event publisher: topic is required")
	}
	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = "eventdesk-api"
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProduceRequestTimeout(10*time.Second),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID(clientID),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka event publisher: new client: %w", err)
	}
	return newKafkaPublisher(client, topic), nil
}

func newKafkaPublisher(client producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, marshal: json.Marshal}
}

// PublishOrderEvent produces one record and waits for the broker acknowledgement. The current
// trace context travels in a traceparent header.
func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.client == nil {
		return errors.New("kafka event publisher: not initialised")
	}
	envelope := NewEnvelope(event)
	data, err := p.marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	headers := []kgo.RecordHeader{{Key: "type", Value: []byte(envelope.Type)}}
	if envelope.OrderNumber != "" {
		headers = append(headers, kgo.RecordHeader{Key: "orderNumber", Value: []byte(envelope.OrderNumber)})
	}
	headers = append(headers, traceHeaders(ctx)...)

	record := &kgo.Record{
		Topic:   p.topic,
		Key:     []byte(envelope.OrderID),
		Value:   data,
		Headers: headers,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce order event: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close(context.Context) error {
	if p == nil || p.client == nil {
		return nil
	}
	p.client.Close()
	return nil
}

func traceHeaders(ctx context.Context) []kgo.RecordHeader {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	traceparent, ok := carrier["traceparent"]
	if !ok {
		return nil
	}
	return []kgo.RecordHeader{{Key: "traceparent", Value: []byte(traceparent)}}
}
