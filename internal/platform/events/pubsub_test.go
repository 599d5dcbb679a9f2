package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/services"
)

func sampleEvent() services.OrderEvent {
	return services.OrderEvent{
		Type:           "order.status_changed",
		OrderID:        "ord_1",
		OrderNumber:    "EVT-0001",
		OrderType:      domain.OrderTypeEvent,
		PreviousStatus: domain.OrderStatusPending,
		CurrentStatus:  domain.OrderStatusQuoted,
		ActorID:        "admin-1",
		OccurredAt:     time.Date(2026, 5, 6, 9, 0, 0, 0, time.FixedZone("GST", 4*3600)),
		Metadata:       map[string]any{"notes": "quote sent"},
	}
}

func TestPubSubPublisherPublishesEnvelope(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	topic.EnableMessageOrdering = true

	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	defer func() { _ = publisher.Close(ctx) }()

	if err := publisher.PublishOrderEvent(ctx, sampleEvent()); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload Envelope
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderNumber != "EVT-0001" || payload.CurrentStatus != "quoted" || payload.PreviousStatus != "pending" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", payload.OccurredAt)
	}
	if attr := messages[0].Attributes["type"]; attr != "order.status_changed" {
		t.Fatalf("expected type attribute, got %q", attr)
	}
	if messages[0].OrderingKey != "ord_1" {
		t.Fatalf("expected ordering key, got %q", messages[0].OrderingKey)
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
