package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"restopos/internal/models"
	"restopos/internal/redisclient"
	"restopos/internal/util"

	"go.uber.org/zap"
)

const (
	kitchenDedupeKey = "kitchen:processed"
	kitchenQueueKey  = "kitchen:queue"
)

// KitchenTicket is the kitchen display's view of one order.
type KitchenTicket struct {
	OrderID       string             `json:"order_id"`
	OrderNumber   string             `json:"order_number"`
	TableNumber   int                `json:"table_number"`
	Status        models.OrderStatus `json:"status"`
	EstimatedPrep int                `json:"estimated_prep_minutes"`
	CreatedAt     int64              `json:"created_at_unix"`
	Items         []models.EventItem `json:"items"`
}

// Kitchen maintains the kitchen queue view in Redis by consuming the
// order event stream. The view is eventually consistent; every apply is
// idempotent on event ID, so at-least-once delivery shows each order
// exactly once.
type Kitchen struct {
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewKitchen creates a new kitchen projection
func NewKitchen(redis *redisclient.Client) *Kitchen {
	return &Kitchen{
		redis:  redis,
		logger: util.GetLogger(),
	}
}

func kitchenOrderKey(orderID string) string {
	return "kitchen:order:" + orderID
}

// HandleEvent applies one event to the kitchen queue view
func (k *Kitchen) HandleEvent(ctx context.Context, event models.Event) error {
	switch event.EventType {
	case models.EventTypeOrderCreated:
		return k.applyCreated(ctx, event)
	case models.EventTypeOrderStatusChange:
		return k.applyOrderStatus(ctx, event)
	case models.EventTypeItemStatusChange:
		return k.applyItemStatus(ctx, event)
	default:
		return nil
	}
}

func (k *Kitchen) applyCreated(ctx context.Context, event models.Event) error {
	var payload models.OrderCreatedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal order_created payload: %w", err)
	}

	ticket := BuildTicket(event.OrderID, payload)
	itemsJSON, err := json.Marshal(ticket.Items)
	if err != nil {
		return err
	}

	applied, err := k.redis.ApplyUpsert(ctx,
		kitchenDedupeKey, kitchenQueueKey, kitchenOrderKey(event.OrderID),
		event.EventID, event.OrderID, float64(ticket.CreatedAt),
		map[string]string{
			"order_number":   ticket.OrderNumber,
			"table_number":   strconv.Itoa(ticket.TableNumber),
			"status":         ticket.Status.String(),
			"estimated_prep": strconv.Itoa(ticket.EstimatedPrep),
			"created_at":     strconv.FormatInt(ticket.CreatedAt, 10),
			"items":          string(itemsJSON),
		})
	if err != nil {
		return err
	}
	k.count(applied)
	return nil
}

func (k *Kitchen) applyOrderStatus(ctx context.Context, event models.Event) error {
	var payload models.OrderStatusChangedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal order_status_changed payload: %w", err)
	}

	var applied bool
	var err error
	if LeavesKitchenQueue(payload.To) {
		applied, err = k.redis.ApplyRemove(ctx,
			kitchenDedupeKey, kitchenQueueKey, kitchenOrderKey(event.OrderID),
			event.EventID, event.OrderID, true)
	} else {
		// Field-only update: the queue position stays keyed by the
		// creation timestamp the ticket was inserted with.
		applied, err = k.redis.ApplyUpdate(ctx,
			kitchenDedupeKey, kitchenQueueKey, kitchenOrderKey(event.OrderID),
			event.EventID,
			map[string]string{"status": payload.To.String()})
	}
	if err != nil {
		return err
	}
	k.count(applied)
	return nil
}

func (k *Kitchen) applyItemStatus(ctx context.Context, event models.Event) error {
	var payload models.ItemStatusChangedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal item_status_changed payload: %w", err)
	}

	applied, err := k.redis.ApplyUpdate(ctx,
		kitchenDedupeKey, kitchenQueueKey, kitchenOrderKey(event.OrderID),
		event.EventID,
		map[string]string{"item:" + payload.ItemID: payload.To.String()})
	if err != nil {
		return err
	}
	k.count(applied)
	return nil
}

func (k *Kitchen) count(applied bool) {
	if applied {
		util.ProjectionEventsAppliedTotal.WithLabelValues("kitchen").Inc()
	} else {
		util.ProjectionDuplicatesTotal.WithLabelValues("kitchen").Inc()
	}
}

// Queue returns the kitchen queue, oldest order first
func (k *Kitchen) Queue(ctx context.Context) ([]KitchenTicket, error) {
	orderIDs, err := k.redis.ZRangeMembers(ctx, kitchenQueueKey)
	if err != nil {
		return nil, err
	}

	tickets := make([]KitchenTicket, 0, len(orderIDs))
	for _, id := range orderIDs {
		fields, err := k.redis.GetHash(ctx, kitchenOrderKey(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}

		ticket := KitchenTicket{OrderID: id}
		ticket.OrderNumber = fields["order_number"]
		ticket.TableNumber, _ = strconv.Atoi(fields["table_number"])
		ticket.Status = models.OrderStatus(fields["status"])
		ticket.EstimatedPrep, _ = strconv.Atoi(fields["estimated_prep"])
		ticket.CreatedAt, _ = strconv.ParseInt(fields["created_at"], 10, 64)
		if raw, ok := fields["items"]; ok {
			if err := json.Unmarshal([]byte(raw), &ticket.Items); err != nil {
				k.logger.Warn("Bad items payload in kitchen view",
					zap.String("order_id", id), zap.Error(err))
			}
		}
		// Item status overrides recorded after creation.
		for f, v := range fields {
			if len(f) > 5 && f[:5] == "item:" {
				itemID := f[5:]
				for i := range ticket.Items {
					if ticket.Items[i].ItemID == itemID {
						ticket.Items[i].Status = models.ItemStatus(v)
					}
				}
			}
		}
		tickets = append(tickets, ticket)
	}

	return tickets, nil
}

// LeavesKitchenQueue reports whether an order in the given status no
// longer belongs on the kitchen display.
func LeavesKitchenQueue(status models.OrderStatus) bool {
	switch status {
	case models.OrderStatusReady, models.OrderStatusServed, models.OrderStatusCancelled:
		return true
	}
	return false
}

// BuildTicket converts an order_created payload into a kitchen ticket
func BuildTicket(orderID string, payload models.OrderCreatedPayload) KitchenTicket {
	return KitchenTicket{
		OrderID:       orderID,
		OrderNumber:   payload.OrderNumber,
		TableNumber:   payload.TableNumber,
		Status:        models.OrderStatusPending,
		EstimatedPrep: payload.EstimatedPrep,
		CreatedAt:     payload.CreatedAt.Unix(),
		Items:         payload.Items,
	}
}
