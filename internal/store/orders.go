package store

import (
	"context"
	"database/sql"
	"fmt"

	"restopos/internal/models"
)

// CreateOrder persists an order, its items and the order_created outbox
// event in one transaction, so the event cannot exist without the order
// nor the order without its event.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, event models.Event) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (id, order_number, table_number, customer_name, customer_phone,
			order_type, waiter_id, waiter_name, status, reservation_id, idempotency_key,
			subtotal_cents, tax_cents, total_cents, notes, estimated_prep_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`

	row := tx.QueryRowxContext(ctx, query,
		order.ID, order.OrderNumber, order.TableNumber, order.CustomerName, order.CustomerPhone,
		order.OrderType, order.WaiterID, order.WaiterName, order.Status, order.ReservationID,
		order.IdempotencyKey, order.SubtotalCents, order.TaxCents, order.TotalCents,
		order.Notes, order.EstimatedPrep)
	if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, menu_item_id, menu_item_name, quantity,
				unit_price_cents, total_price_cents, status, special_instructions, preparation_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			item.ID, item.OrderID, item.MenuItemID, item.MenuItemName, item.Quantity,
			item.UnitPriceCents, item.TotalPriceCents, item.Status,
			item.SpecialInstructions, item.PreparationTime); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := s.insertOutboxTx(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by its idempotency key.
// Returns nil, nil when no order carries the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves orders matching the filter, newest first
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	query := "SELECT * FROM orders WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.WaiterID != "" {
		args = append(args, filter.WaiterID)
		query += fmt.Sprintf(" AND waiter_id = $%d", len(args))
	}
	if filter.TableNumber > 0 {
		args = append(args, filter.TableNumber)
		query += fmt.Sprintf(" AND table_number = $%d", len(args))
	}
	if filter.Date != nil {
		args = append(args, *filter.Date)
		query += fmt.Sprintf(" AND created_at >= $%d AND created_at < $%d + INTERVAL '1 day'", len(args), len(args))
	}
	query += " ORDER BY created_at DESC"

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// statusTimestampCol maps an order status to the timestamp column stamped
// when the order reaches it. Values are compile-time constants, never
// caller input.
var statusTimestampCol = map[models.OrderStatus]string{
	models.OrderStatusConfirmed: "confirmed_at",
	models.OrderStatusPreparing: "preparing_at",
	models.OrderStatusReady:     "ready_at",
	models.OrderStatusServed:    "served_at",
	models.OrderStatusCancelled: "cancelled_at",
}

// TransitionOrder moves an order from one status to another with a
// guarded update, stamping the transition timestamp and writing the
// outbox event in the same transaction. Returns false when the guard
// misses, meaning a concurrent transition already moved the order.
func (s *Store) TransitionOrder(ctx context.Context, orderID string, from, to models.OrderStatus, event models.Event) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := "UPDATE orders SET status = $1, updated_at = NOW()"
	if col, ok := statusTimestampCol[to]; ok {
		query += ", " + col + " = NOW()"
	}
	query += " WHERE id = $2 AND status = $3"

	r, err := tx.ExecContext(ctx, query, to, orderID, from)
	if err != nil {
		return false, err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := s.insertOutboxTx(ctx, tx, event); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// ConfirmOrder is the confirmed transition: the guarded status update,
// the reservation commit with its stock deduction, and the outbox event
// all ride one transaction, so a failure anywhere leaves the order
// pending with its hold intact and retryable. Returns false when the
// status guard misses.
func (s *Store) ConfirmOrder(ctx context.Context, orderID string, from models.OrderStatus, reservationID string, event models.Event) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW(), confirmed_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.OrderStatusConfirmed, orderID, from)
	if err != nil {
		return false, err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := s.commitReservationTx(ctx, tx, reservationID); err != nil {
		return false, err
	}

	if err := s.insertOutboxTx(ctx, tx, event); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// TransitionOrderItem moves an order item between statuses with the same
// guarded-update-plus-outbox pattern as TransitionOrder. The parent
// order's status is re-checked inside the update so an item can never
// advance under an order that went terminal after the caller's read.
func (s *Store) TransitionOrderItem(ctx context.Context, orderID, itemID string, from, to models.ItemStatus, event models.Event) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx, `
		UPDATE order_items SET status = $1
		WHERE id = $2 AND order_id = $3 AND status = $4
		  AND EXISTS (
			SELECT 1 FROM orders o
			WHERE o.id = $3 AND o.status NOT IN ($5, $6)
		  )`,
		to, itemID, orderID, from,
		models.OrderStatusServed, models.OrderStatusCancelled)
	if err != nil {
		return false, err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := s.insertOutboxTx(ctx, tx, event); err != nil {
		return false, err
	}

	return true, tx.Commit()
}
