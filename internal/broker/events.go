package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"restopos/internal/models"

	"github.com/segmentio/kafka-go"
)

// PublishEvent writes an event envelope to the broker keyed by order ID
func (p *Producer) PublishEvent(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.Publish(ctx, "order-"+event.OrderID, data); err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}
	return nil
}

// EventHandlerFunc processes one event envelope
type EventHandlerFunc func(ctx context.Context, event models.Event) error

// EventRouter dispatches incoming events to handlers registered per
// event type. Unregistered types are logged and committed.
type EventRouter struct {
	handlers map[string][]EventHandlerFunc
}

// NewEventRouter creates a new event router
func NewEventRouter() *EventRouter {
	return &EventRouter{handlers: make(map[string][]EventHandlerFunc)}
}

// On registers a handler for the given event types
func (r *EventRouter) On(handler EventHandlerFunc, eventTypes ...string) {
	for _, t := range eventTypes {
		r.handlers[t] = append(r.handlers[t], handler)
	}
}

// HandleMessage decodes a broker message and routes it
func (r *EventRouter) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// A malformed message can never succeed; drop it rather than
		// block the partition.
		log.Printf("Dropping undecodable event message: %v", err)
		return nil
	}

	handlers, ok := r.handlers[event.EventType]
	if !ok {
		log.Printf("Unhandled event type: %s", event.EventType)
		return nil
	}

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return fmt.Errorf("handler for %s failed: %w", event.EventType, err)
		}
	}
	return nil
}
