package projection

import (
	"testing"
	"time"

	"restopos/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildTicket(t *testing.T) {
	created := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	payload := models.OrderCreatedPayload{
		OrderNumber:   "ORD12345678",
		TableNumber:   7,
		EstimatedPrep: 20,
		CreatedAt:     created,
		Items: []models.EventItem{
			{ItemID: "i1", MenuItemName: "Burger", Quantity: 2, Status: models.ItemStatusPending},
			{ItemID: "i2", MenuItemName: "Fries", Quantity: 1, Status: models.ItemStatusPending},
		},
	}

	ticket := BuildTicket("order-1", payload)

	assert.Equal(t, "order-1", ticket.OrderID)
	assert.Equal(t, "ORD12345678", ticket.OrderNumber)
	assert.Equal(t, 7, ticket.TableNumber)
	assert.Equal(t, models.OrderStatusPending, ticket.Status)
	assert.Equal(t, 20, ticket.EstimatedPrep)
	assert.Equal(t, created.Unix(), ticket.CreatedAt)
	assert.Len(t, ticket.Items, 2)
}

func TestLeavesKitchenQueue(t *testing.T) {
	// Orders the kitchen still works stay in the queue with their
	// original creation-time ordering; the rest drop out.
	assert.False(t, LeavesKitchenQueue(models.OrderStatusPending))
	assert.False(t, LeavesKitchenQueue(models.OrderStatusConfirmed))
	assert.False(t, LeavesKitchenQueue(models.OrderStatusPreparing))
	assert.True(t, LeavesKitchenQueue(models.OrderStatusReady))
	assert.True(t, LeavesKitchenQueue(models.OrderStatusServed))
	assert.True(t, LeavesKitchenQueue(models.OrderStatusCancelled))
}
