package models

import (
	"encoding/json"
	"time"
)

// Event types
const (
	EventTypeOrderCreated      = "order_created"
	EventTypeOrderStatusChange = "order_status_changed"
	EventTypeItemStatusChange  = "order_item_status_changed"
)

// Event is the immutable envelope written to the outbox and carried on
// the broker. Consumers de-duplicate by EventID; ordering is guaranteed
// per OrderID only.
type Event struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OrderID    string          `json:"order_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// OutboxEvent is the durable outbox row for an Event. It is written in
// the same transaction as the state change it describes and delivered by
// the dispatcher with retry and dead-lettering.
type OutboxEvent struct {
	EventID       string     `db:"event_id" json:"event_id"`
	EventType     string     `db:"event_type" json:"event_type"`
	OrderID       string     `db:"order_id" json:"order_id"`
	Payload       []byte     `db:"payload" json:"payload"`
	OccurredAt    time.Time  `db:"occurred_at" json:"occurred_at"`
	Attempts      int        `db:"attempts" json:"attempts"`
	NextAttemptAt time.Time  `db:"next_attempt_at" json:"next_attempt_at"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	DeadAt        *time.Time `db:"dead_at" json:"dead_at,omitempty"`
}

// Envelope converts the outbox row back into the wire envelope.
func (o *OutboxEvent) Envelope() Event {
	return Event{
		EventID:    o.EventID,
		EventType:  o.EventType,
		OrderID:    o.OrderID,
		OccurredAt: o.OccurredAt,
		Payload:    json.RawMessage(o.Payload),
	}
}

// EventItem is the item snapshot carried in event payloads.
type EventItem struct {
	ItemID         string     `json:"item_id"`
	MenuItemID     string     `json:"menu_item_id"`
	MenuItemName   string     `json:"menu_item_name"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Status         ItemStatus `json:"status"`
	Instructions   string     `json:"instructions,omitempty"`
}

// OrderCreatedPayload is carried by order_created events.
type OrderCreatedPayload struct {
	OrderNumber   string      `json:"order_number"`
	TableNumber   int         `json:"table_number"`
	OrderType     string      `json:"order_type"`
	WaiterID      string      `json:"waiter_id"`
	WaiterName    string      `json:"waiter_name"`
	TotalCents    int64       `json:"total_cents"`
	EstimatedPrep int         `json:"estimated_prep_minutes"`
	Items         []EventItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderStatusChangedPayload is carried by order_status_changed events.
type OrderStatusChangedPayload struct {
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
	Reason      string      `json:"reason,omitempty"`
	TotalCents  int64       `json:"total_cents"`
	TableNumber int         `json:"table_number"`
}

// ItemStatusChangedPayload is carried by order_item_status_changed events.
type ItemStatusChangedPayload struct {
	ItemID       string     `json:"item_id"`
	MenuItemName string     `json:"menu_item_name"`
	From         ItemStatus `json:"from"`
	To           ItemStatus `json:"to"`
}

// NewEvent builds an Event envelope with a marshalled payload.
func NewEvent(eventID, eventType, orderID string, occurredAt time.Time, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:    eventID,
		EventType:  eventType,
		OrderID:    orderID,
		OccurredAt: occurredAt,
		Payload:    raw,
	}, nil
}
