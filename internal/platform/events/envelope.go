// Package events publishes order domain events to Pub/Sub or Kafka.
package events

import (
	"strings"
	"time"

	"github.com/eventdesk/api/internal/services"
)

// Envelope is the JSON payload written for every order event.
type Envelope struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	OrderType      string         `json:"orderType,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewEnvelope converts a service event into its wire form.
func NewEnvelope(event services.OrderEvent) Envelope {
	return Envelope{
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		OrderType:      string(event.OrderType),
		PreviousStatus: string(event.PreviousStatus),
		CurrentStatus:  string(event.CurrentStatus),
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	}
}

func (e Envelope) attributes() map[string]string {
	attrs := make(map[string]string)
	setAttr(attrs, "type", e.Type)
	setAttr(attrs, "orderId", e.OrderID)
	setAttr(attrs, "orderNumber", e.OrderNumber)
	setAttr(attrs, "orderType", e.OrderType)
	setAttr(attrs, "status", e.CurrentStatus)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
