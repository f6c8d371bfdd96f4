package models

import (
	"time"

	"github.com/lib/pq"
)

// MenuItem represents a sellable item on the menu. Menu items are never
// hard-deleted once referenced by an order; they are disabled via
// IsAvailable instead.
type MenuItem struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Description     string         `db:"description" json:"description,omitempty"`
	PriceCents      int64          `db:"price_cents" json:"price_cents"`
	Category        string         `db:"category" json:"category"`
	PreparationTime int            `db:"preparation_time" json:"preparation_time"`
	IsAvailable     bool           `db:"is_available" json:"is_available"`
	Allergens       pq.StringArray `db:"allergens" json:"allergens"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Menu item categories
const (
	CategoryAppetizer = "appetizer"
	CategoryMain      = "main"
	CategoryDessert   = "dessert"
	CategoryBeverage  = "beverage"
	CategorySide      = "side"
)

// ValidCategory reports whether c is a known menu category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryAppetizer, CategoryMain, CategoryDessert, CategoryBeverage, CategorySide:
		return true
	}
	return false
}

// RecipeLine is one ingredient requirement of a menu item.
type RecipeLine struct {
	MenuItemID   string  `db:"menu_item_id" json:"menu_item_id"`
	IngredientID string  `db:"ingredient_id" json:"ingredient_id"`
	Quantity     float64 `db:"quantity" json:"quantity"`
	Unit         string  `db:"unit" json:"unit"`
	Position     int     `db:"position" json:"position"`
}

// Ingredient represents ingredient stock. CurrentStock and Reserved are
// mutated only through the reservation engine and the serialized
// AdjustStock path; CurrentStock - Reserved is the pool available to new
// reservations.
type Ingredient struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Unit          string     `db:"unit" json:"unit"`
	CurrentStock  float64    `db:"current_stock" json:"current_stock"`
	Reserved      float64    `db:"reserved" json:"reserved"`
	MinimumStock  float64    `db:"minimum_stock" json:"minimum_stock"`
	MaximumStock  float64    `db:"maximum_stock" json:"maximum_stock"`
	UnitCostCents int64      `db:"unit_cost_cents" json:"unit_cost_cents"`
	Supplier      string     `db:"supplier" json:"supplier,omitempty"`
	ExpiryDate    *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	LastRestocked *time.Time `db:"last_restocked" json:"last_restocked,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Available returns the stock not held by any reservation.
func (i *Ingredient) Available() float64 {
	return i.CurrentStock - i.Reserved
}

// IsLowStock reports whether available stock has fallen to the minimum.
func (i *Ingredient) IsLowStock() bool {
	return i.CurrentStock <= i.MinimumStock
}

// Reservation states
const (
	ReservationHeld      = "held"
	ReservationCommitted = "committed"
	ReservationReleased  = "released"
)

// StockReservation is a provisional hold on ingredient stock tied to one
// order. It is committed when the order is confirmed or released when the
// order is cancelled or the hold expires.
type StockReservation struct {
	ID        string    `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	State     string    `db:"state" json:"state"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`

	Lines []ReservationLine `json:"lines"`
}

// ReservationLine is the held quantity of one ingredient.
type ReservationLine struct {
	ReservationID string  `db:"reservation_id" json:"reservation_id"`
	IngredientID  string  `db:"ingredient_id" json:"ingredient_id"`
	Quantity      float64 `db:"quantity" json:"quantity"`
}

// Order types
const (
	OrderTypeDineIn   = "dine-in"
	OrderTypeTakeaway = "takeaway"
	OrderTypeDelivery = "delivery"
)

// ValidOrderType reports whether t is a known order type.
func ValidOrderType(t string) bool {
	switch t {
	case OrderTypeDineIn, OrderTypeTakeaway, OrderTypeDelivery:
		return true
	}
	return false
}

// Order represents a customer order. Immutable once served or cancelled.
type Order struct {
	ID             string      `db:"id" json:"id"`
	OrderNumber    string      `db:"order_number" json:"order_number"`
	TableNumber    int         `db:"table_number" json:"table_number"`
	CustomerName   string      `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone  string      `db:"customer_phone" json:"customer_phone,omitempty"`
	OrderType      string      `db:"order_type" json:"order_type"`
	WaiterID       string      `db:"waiter_id" json:"waiter_id"`
	WaiterName     string      `db:"waiter_name" json:"waiter_name"`
	Status         OrderStatus `db:"status" json:"status"`
	ReservationID  string      `db:"reservation_id" json:"reservation_id,omitempty"`
	IdempotencyKey string      `db:"idempotency_key" json:"idempotency_key,omitempty"`
	SubtotalCents  int64       `db:"subtotal_cents" json:"subtotal_cents"`
	TaxCents       int64       `db:"tax_cents" json:"tax_cents"`
	TotalCents     int64       `db:"total_cents" json:"total_cents"`
	Notes          string      `db:"notes" json:"notes,omitempty"`
	EstimatedPrep  int         `db:"estimated_prep_minutes" json:"estimated_prep_minutes"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
	ConfirmedAt    *time.Time  `db:"confirmed_at" json:"confirmed_at,omitempty"`
	PreparingAt    *time.Time  `db:"preparing_at" json:"preparing_at,omitempty"`
	ReadyAt        *time.Time  `db:"ready_at" json:"ready_at,omitempty"`
	ServedAt       *time.Time  `db:"served_at" json:"served_at,omitempty"`
	CancelledAt    *time.Time  `db:"cancelled_at" json:"cancelled_at,omitempty"`

	Items []OrderItem `json:"items"`
}

// OrderItem is one line of an order. Name and price are snapshots taken
// at order time so later menu edits never alter historical orders.
type OrderItem struct {
	ID                  string     `db:"id" json:"id"`
	OrderID             string     `db:"order_id" json:"order_id"`
	MenuItemID          string     `db:"menu_item_id" json:"menu_item_id"`
	MenuItemName        string     `db:"menu_item_name" json:"menu_item_name"`
	Quantity            int        `db:"quantity" json:"quantity"`
	UnitPriceCents      int64      `db:"unit_price_cents" json:"unit_price_cents"`
	TotalPriceCents     int64      `db:"total_price_cents" json:"total_price_cents"`
	Status              ItemStatus `db:"status" json:"status"`
	SpecialInstructions string     `db:"special_instructions" json:"special_instructions,omitempty"`
	PreparationTime     int        `db:"preparation_time" json:"preparation_time"`
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Status      OrderStatus
	WaiterID    string
	TableNumber int
	Date        *time.Time
}

// MenuFilter narrows ListMenuItems.
type MenuFilter struct {
	Category      string
	AvailableOnly bool
}
