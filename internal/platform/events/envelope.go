// Package events delivers order lifecycle events to downstream consumers (notifications, farmer
// dashboards). Every publisher implements services.OrderEventPublisher.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Hero-Alpha/KrishiSetu/internal/platform/textutil"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

// Envelope is the JSON body written to every transport.
type Envelope struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	ConsumerID     string         `json:"consumerId,omitempty"`
	FarmerIDs      []string       `json:"farmerIds,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewEnvelope assigns a fresh event id to the order event.
func NewEnvelope(event services.OrderEvent) Envelope {
	return Envelope{
		ID:             uuid.NewString(),
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		ConsumerID:     event.ConsumerID,
		FarmerIDs:      event.FarmerIDs,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	}
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Attributes returns the routing attributes shared by Pub/Sub attributes and Kafka headers.
func (e Envelope) Attributes() map[string]string {
	return textutil.CompactStringMap(map[string]string{
		"eventId":   e.ID,
		"eventType": e.Type,
		"orderId":   e.OrderID,
		"status":    e.CurrentStatus,
	})
}
