package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusPreparing, false},
		{OrderStatusPending, OrderStatusServed, false},
		{OrderStatusConfirmed, OrderStatusPreparing, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusReady, false},
		{OrderStatusPreparing, OrderStatusReady, true},
		{OrderStatusPreparing, OrderStatusCancelled, true},
		{OrderStatusPreparing, OrderStatusServed, false},
		{OrderStatusReady, OrderStatusServed, true},
		{OrderStatusReady, OrderStatusCancelled, false},
		{OrderStatusServed, OrderStatusPending, false},
		{OrderStatusServed, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		got := tt.from.CanTransitionTo(tt.to)
		assert.Equal(t, tt.allowed, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusServed.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusPending.Terminal())
	assert.False(t, OrderStatusReady.Terminal())
	assert.False(t, OrderStatus("bogus").Terminal())
}

func TestOrderStatusValid(t *testing.T) {
	assert.True(t, OrderStatusPending.Valid())
	assert.True(t, OrderStatusCancelled.Valid())
	assert.False(t, OrderStatus("shipped").Valid())
	assert.False(t, OrderStatus("").Valid())
}

func TestItemStatusCanTransitionTo(t *testing.T) {
	assert.True(t, ItemStatusPending.CanTransitionTo(ItemStatusPreparing))
	assert.True(t, ItemStatusPreparing.CanTransitionTo(ItemStatusReady))
	assert.True(t, ItemStatusReady.CanTransitionTo(ItemStatusServed))
	assert.True(t, ItemStatusReady.CanTransitionTo(ItemStatusCancelled))

	assert.False(t, ItemStatusPending.CanTransitionTo(ItemStatusReady))
	assert.False(t, ItemStatusServed.CanTransitionTo(ItemStatusPending))
	assert.False(t, ItemStatusCancelled.CanTransitionTo(ItemStatusPreparing))
}

func TestItemStatusAllowed(t *testing.T) {
	// Items cannot progress while the order is still pending.
	assert.False(t, ItemStatusAllowed(OrderStatusPending, ItemStatusPreparing))
	assert.True(t, ItemStatusAllowed(OrderStatusPending, ItemStatusCancelled))

	// Confirmed order lets items start preparing but not finish.
	assert.True(t, ItemStatusAllowed(OrderStatusConfirmed, ItemStatusPreparing))
	assert.False(t, ItemStatusAllowed(OrderStatusConfirmed, ItemStatusReady))

	assert.True(t, ItemStatusAllowed(OrderStatusPreparing, ItemStatusReady))
	assert.False(t, ItemStatusAllowed(OrderStatusPreparing, ItemStatusServed))

	assert.True(t, ItemStatusAllowed(OrderStatusReady, ItemStatusServed))

	// Terminal orders freeze their items entirely.
	assert.False(t, ItemStatusAllowed(OrderStatusServed, ItemStatusCancelled))
	assert.False(t, ItemStatusAllowed(OrderStatusCancelled, ItemStatusCancelled))
}

func items(statuses ...ItemStatus) []OrderItem {
	out := make([]OrderItem, len(statuses))
	for i, s := range statuses {
		out[i] = OrderItem{Status: s}
	}
	return out
}

func TestNextOrderStatus(t *testing.T) {
	// One item starts preparing: confirmed order follows.
	next, ok := NextOrderStatus(OrderStatusConfirmed, items(ItemStatusPreparing, ItemStatusPending))
	assert.True(t, ok)
	assert.Equal(t, OrderStatusPreparing, next)

	// All items ready: preparing order becomes ready.
	next, ok = NextOrderStatus(OrderStatusPreparing, items(ItemStatusReady, ItemStatusReady))
	assert.True(t, ok)
	assert.Equal(t, OrderStatusReady, next)

	// Cancelled items do not block readiness.
	next, ok = NextOrderStatus(OrderStatusPreparing, items(ItemStatusReady, ItemStatusCancelled))
	assert.True(t, ok)
	assert.Equal(t, OrderStatusReady, next)

	// All items served: ready order becomes served.
	next, ok = NextOrderStatus(OrderStatusReady, items(ItemStatusServed, ItemStatusServed))
	assert.True(t, ok)
	assert.Equal(t, OrderStatusServed, next)

	// Some items still pending: no advance past preparing.
	_, ok = NextOrderStatus(OrderStatusPreparing, items(ItemStatusReady, ItemStatusPending))
	assert.False(t, ok)

	// Every item cancelled: never auto-advance, the order must be
	// cancelled explicitly so its reservation is released.
	_, ok = NextOrderStatus(OrderStatusConfirmed, items(ItemStatusCancelled, ItemStatusCancelled))
	assert.False(t, ok)

	// A pending order never auto-advances, confirmation commits stock.
	_, ok = NextOrderStatus(OrderStatusPending, items(ItemStatusPending))
	assert.False(t, ok)
}

func TestAllItemsAtLeastReady(t *testing.T) {
	assert.True(t, AllItemsAtLeastReady(items(ItemStatusReady, ItemStatusServed)))
	assert.True(t, AllItemsAtLeastReady(items(ItemStatusReady, ItemStatusCancelled)))
	assert.False(t, AllItemsAtLeastReady(items(ItemStatusReady, ItemStatusPreparing)))
}

func TestAllItemsServed(t *testing.T) {
	assert.True(t, AllItemsServed(items(ItemStatusServed, ItemStatusCancelled)))
	assert.False(t, AllItemsServed(items(ItemStatusServed, ItemStatusReady)))
}
