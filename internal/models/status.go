package models

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// String returns the string representation of the status.
func (s OrderStatus) String() string {
	return string(s)
}

// orderTransitions is the single source of truth for legal order
// transitions. Both the service layer and the guarded SQL updates
// validate against it.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusServed},
	OrderStatusServed:    {},
	OrderStatusCancelled: {},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0 && s.Valid()
}

// CanTransitionTo reports whether s -> target is a legal transition.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, t := range orderTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusConfirmed: 1,
	OrderStatusPreparing: 2,
	OrderStatusReady:     3,
	OrderStatusServed:    4,
}

// ItemStatus is the lifecycle status of a single order item. Items
// progress independently of each other but are bounded by their parent
// order's status.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusPreparing ItemStatus = "preparing"
	ItemStatusReady     ItemStatus = "ready"
	ItemStatusServed    ItemStatus = "served"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// String returns the string representation of the status.
func (s ItemStatus) String() string {
	return string(s)
}

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemStatusPending:   {ItemStatusPreparing, ItemStatusCancelled},
	ItemStatusPreparing: {ItemStatusReady, ItemStatusCancelled},
	ItemStatusReady:     {ItemStatusServed, ItemStatusCancelled},
	ItemStatusServed:    {},
	ItemStatusCancelled: {},
}

var itemStatusRank = map[ItemStatus]int{
	ItemStatusPending:   0,
	ItemStatusPreparing: 1,
	ItemStatusReady:     2,
	ItemStatusServed:    3,
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	_, ok := itemTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s ItemStatus) Terminal() bool {
	return len(itemTransitions[s]) == 0 && s.Valid()
}

// CanTransitionTo reports whether s -> target is a legal item transition.
func (s ItemStatus) CanTransitionTo(target ItemStatus) bool {
	for _, t := range itemTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// maxItemStatus bounds how far an item may progress given its parent
// order's status: items start preparing once the order is confirmed, can
// only become ready while the kitchen is working the order, and are
// served one by one while the order is ready.
var maxItemStatus = map[OrderStatus]ItemStatus{
	OrderStatusPending:   ItemStatusPending,
	OrderStatusConfirmed: ItemStatusPreparing,
	OrderStatusPreparing: ItemStatusReady,
	OrderStatusReady:     ItemStatusServed,
	OrderStatusServed:    ItemStatusServed,
}

// ItemStatusAllowed reports whether an item may move to target while its
// order is in orderStatus. Cancellation is always allowed from a
// non-terminal item state as long as the order itself is not terminal.
func ItemStatusAllowed(orderStatus OrderStatus, target ItemStatus) bool {
	if target == ItemStatusCancelled {
		return !orderStatus.Terminal()
	}
	max, ok := maxItemStatus[orderStatus]
	if !ok {
		return false
	}
	return itemStatusRank[target] <= itemStatusRank[max]
}

// NextOrderStatus computes the deterministic auto-advance target for an
// order after one of its items changed status. The policy: any item
// preparing pulls a confirmed order into preparing; once every
// non-cancelled item is at least ready the order becomes ready; once
// every non-cancelled item is served the order becomes served. Returns
// ok=false when no advance applies. Orders with only cancelled items are
// never auto-advanced; they must be cancelled at the order level so the
// reservation is released.
func NextOrderStatus(current OrderStatus, items []OrderItem) (OrderStatus, bool) {
	active := 0
	anyPreparing := false
	allReady := true
	allServed := true
	for _, it := range items {
		if it.Status == ItemStatusCancelled {
			continue
		}
		active++
		if itemStatusRank[it.Status] >= itemStatusRank[ItemStatusPreparing] {
			anyPreparing = true
		}
		if itemStatusRank[it.Status] < itemStatusRank[ItemStatusReady] {
			allReady = false
		}
		if it.Status != ItemStatusServed {
			allServed = false
		}
	}
	if active == 0 {
		return current, false
	}

	switch {
	case allServed && current.CanTransitionTo(OrderStatusServed):
		return OrderStatusServed, true
	case allReady && current.CanTransitionTo(OrderStatusReady):
		return OrderStatusReady, true
	case anyPreparing && current.CanTransitionTo(OrderStatusPreparing):
		return OrderStatusPreparing, true
	}
	return current, false
}

// AllItemsAtLeastReady reports whether every non-cancelled item has
// reached ready. An order may not become ready before that holds.
func AllItemsAtLeastReady(items []OrderItem) bool {
	for _, it := range items {
		if it.Status == ItemStatusCancelled {
			continue
		}
		if itemStatusRank[it.Status] < itemStatusRank[ItemStatusReady] {
			return false
		}
	}
	return true
}

// AllItemsServed reports whether every non-cancelled item is served.
func AllItemsServed(items []OrderItem) bool {
	for _, it := range items {
		if it.Status == ItemStatusCancelled {
			continue
		}
		if it.Status != ItemStatusServed {
			return false
		}
	}
	return true
}
