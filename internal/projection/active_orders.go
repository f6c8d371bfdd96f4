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
	activeDedupeKey = "orders:active:processed"
	activeIndexKey  = "orders:active"
)

// ActiveOrder is the dashboard/billing view of one in-flight order.
type ActiveOrder struct {
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	TableNumber int                `json:"table_number"`
	WaiterName  string             `json:"waiter_name"`
	Status      models.OrderStatus `json:"status"`
	TotalCents  int64              `json:"total_cents"`
}

// ActiveOrders maintains the active-orders view: every non-terminal
// order with its current status and totals. The billing collaborator
// reads it on order_status_changed(served) to price the bill from the
// snapshot totals, never from live menu prices.
type ActiveOrders struct {
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewActiveOrders creates a new active-orders projection
func NewActiveOrders(redis *redisclient.Client) *ActiveOrders {
	return &ActiveOrders{
		redis:  redis,
		logger: util.GetLogger(),
	}
}

func activeOrderKey(orderID string) string {
	return "orders:active:" + orderID
}

// HandleEvent applies one event to the active-orders view
func (a *ActiveOrders) HandleEvent(ctx context.Context, event models.Event) error {
	switch event.EventType {
	case models.EventTypeOrderCreated:
		return a.applyCreated(ctx, event)
	case models.EventTypeOrderStatusChange:
		return a.applyStatus(ctx, event)
	default:
		return nil
	}
}

func (a *ActiveOrders) applyCreated(ctx context.Context, event models.Event) error {
	var payload models.OrderCreatedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal order_created payload: %w", err)
	}

	applied, err := a.redis.ApplySetUpsert(ctx,
		activeDedupeKey, activeIndexKey, activeOrderKey(event.OrderID),
		event.EventID, event.OrderID,
		map[string]string{
			"order_number": payload.OrderNumber,
			"table_number": strconv.Itoa(payload.TableNumber),
			"waiter_name":  payload.WaiterName,
			"status":       models.OrderStatusPending.String(),
			"total_cents":  strconv.FormatInt(payload.TotalCents, 10),
		})
	if err != nil {
		return err
	}
	a.count(applied)
	return nil
}

func (a *ActiveOrders) applyStatus(ctx context.Context, event models.Event) error {
	var payload models.OrderStatusChangedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal order_status_changed payload: %w", err)
	}

	var applied bool
	var err error
	if payload.To.Terminal() {
		applied, err = a.redis.ApplyRemove(ctx,
			activeDedupeKey, activeIndexKey, activeOrderKey(event.OrderID),
			event.EventID, event.OrderID, false)
	} else {
		applied, err = a.redis.ApplySetUpsert(ctx,
			activeDedupeKey, activeIndexKey, activeOrderKey(event.OrderID),
			event.EventID, event.OrderID,
			map[string]string{"status": payload.To.String()})
	}
	if err != nil {
		return err
	}
	a.count(applied)
	return nil
}

func (a *ActiveOrders) count(applied bool) {
	if applied {
		util.ProjectionEventsAppliedTotal.WithLabelValues("active_orders").Inc()
	} else {
		util.ProjectionDuplicatesTotal.WithLabelValues("active_orders").Inc()
	}
}

// List returns all active orders
func (a *ActiveOrders) List(ctx context.Context) ([]ActiveOrder, error) {
	orderIDs, err := a.redis.SetMembers(ctx, activeIndexKey)
	if err != nil {
		return nil, err
	}

	orders := make([]ActiveOrder, 0, len(orderIDs))
	for _, id := range orderIDs {
		fields, err := a.redis.GetHash(ctx, activeOrderKey(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}

		order := ActiveOrder{OrderID: id}
		order.OrderNumber = fields["order_number"]
		order.TableNumber, _ = strconv.Atoi(fields["table_number"])
		order.WaiterName = fields["waiter_name"]
		order.Status = models.OrderStatus(fields["status"])
		order.TotalCents, _ = strconv.ParseInt(fields["total_cents"], 10, 64)
		orders = append(orders, order)
	}

	return orders, nil
}
