package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"restopos/internal/models"
	"restopos/internal/reservation"
	"restopos/internal/util"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// OrderStore is the order persistence the service drives. Implemented by
// store.Store.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetMenuItemsByIDs(ctx context.Context, ids []string) ([]models.MenuItem, error)
	CreateOrder(ctx context.Context, order *models.Order, event models.Event) error
	ConfirmOrder(ctx context.Context, orderID string, from models.OrderStatus, reservationID string, event models.Event) (bool, error)
	TransitionOrder(ctx context.Context, orderID string, from, to models.OrderStatus, event models.Event) (bool, error)
	TransitionOrderItem(ctx context.Context, orderID, itemID string, from, to models.ItemStatus, event models.Event) (bool, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	ListDeadEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
}

// StockReserver holds and releases ingredient stock. Implemented by
// reservation.Engine.
type StockReserver interface {
	TryReserve(ctx context.Context, orderID string, lines []reservation.Line) (*models.StockReservation, error)
	Release(ctx context.Context, reservationID string) error
}

// IdempotencyChecker answers whether a create was seen before. Implemented
// by redisclient.Client.
type IdempotencyChecker interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// OrderService drives the order state machine. Creation is
// reservation-first: stock is held before anything is persisted, so a
// rejected order leaves no trace. Confirmation commits the hold inside
// the same transaction as the status change, cancellation releases it
// before the caller is acknowledged, and every state change writes its
// event to the outbox in the same transaction.
type OrderService struct {
	store             OrderStore
	engine            StockReserver
	idem              IdempotencyChecker
	taxRateBps        int64
	idempotencyKeyTTL time.Duration
	logger            *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st OrderStore, engine StockReserver, idem IdempotencyChecker, taxRateBps int, idempotencyKeyTTL time.Duration) *OrderService {
	return &OrderService{
		store:             st,
		engine:            engine,
		idem:              idem,
		taxRateBps:        int64(taxRateBps),
		idempotencyKeyTTL: idempotencyKeyTTL,
		logger:            util.GetLogger(),
	}
}

// CreateOrderRequest represents a candidate order
type CreateOrderRequest struct {
	TableNumber    int                `json:"table_number" binding:"required"`
	CustomerName   string             `json:"customer_name,omitempty"`
	CustomerPhone  string             `json:"customer_phone,omitempty"`
	OrderType      string             `json:"order_type,omitempty"`
	WaiterID       string             `json:"waiter_id" binding:"required"`
	WaiterName     string             `json:"waiter_name" binding:"required"`
	Notes          string             `json:"notes,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1"`
}

// OrderItemRequest represents an item in a candidate order
type OrderItemRequest struct {
	MenuItemID          string `json:"menu_item_id" binding:"required"`
	Quantity            int    `json:"quantity" binding:"required,min=1"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

func validateCreateRequest(req *CreateOrderRequest) error {
	if req.TableNumber < 1 || req.TableNumber > 100 {
		return models.NewValidationError("table_number", "must be between 1 and 100")
	}
	if req.WaiterID == "" {
		return models.NewValidationError("waiter_id", "must not be empty")
	}
	if req.WaiterName == "" {
		return models.NewValidationError("waiter_name", "must not be empty")
	}
	if req.OrderType == "" {
		req.OrderType = models.OrderTypeDineIn
	}
	if !models.ValidOrderType(req.OrderType) {
		return models.NewValidationError("order_type", "unknown order type "+req.OrderType)
	}
	if len(req.Items) == 0 {
		return models.NewValidationError("items", "must contain at least one item")
	}
	for _, item := range req.Items {
		if item.MenuItemID == "" {
			return models.NewValidationError("items", "menu_item_id must not be empty")
		}
		if item.Quantity < 1 {
			return models.NewValidationError("items", "quantity must be at least 1")
		}
	}
	return nil
}

// Create validates a candidate order, reserves its ingredient stock and
// persists it as pending. On InsufficientStockError nothing is persisted
// and nothing is held. The idempotency key makes client retries safe: a
// duplicate create returns the order created by the first attempt.
func (s *OrderService) Create(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Create")
	defer span.End()

	if err := validateCreateRequest(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.findByIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			s.logger.Info("Duplicate order create detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return existing, nil
		}
	}

	menuItems, err := s.resolveMenuItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	orderID := uuid.New().String()
	lines := make([]reservation.Line, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, reservation.Line{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
	}

	res, err := s.engine.TryReserve(ctx, orderID, lines)
	if err != nil {
		var insufficient *models.InsufficientStockError
		if errors.As(err, &insufficient) {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		}
		return nil, err
	}

	order := s.buildOrder(orderID, req, res.ID, menuItems)

	payload := models.OrderCreatedPayload{
		OrderNumber:   order.OrderNumber,
		TableNumber:   order.TableNumber,
		OrderType:     order.OrderType,
		WaiterID:      order.WaiterID,
		WaiterName:    order.WaiterName,
		TotalCents:    order.TotalCents,
		EstimatedPrep: order.EstimatedPrep,
		CreatedAt:     time.Now(),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, models.EventItem{
			ItemID:         item.ID,
			MenuItemID:     item.MenuItemID,
			MenuItemName:   item.MenuItemName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			Status:         item.Status,
			Instructions:   item.SpecialInstructions,
		})
	}

	event, err := models.NewEvent(uuid.New().String(), models.EventTypeOrderCreated, orderID, time.Now(), payload)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateOrder(ctx, order, event); err != nil {
		// The hold must not outlive the failed create.
		if relErr := s.engine.Release(ctx, res.ID); relErr != nil {
			s.logger.Error("Failed to release reservation after create failure",
				zap.String("reservation_id", res.ID), zap.Error(relErr))
		}

		// Two creates racing on the same idempotency key: the winner's
		// row tripped our unique index, so return the winner's order.
		if req.IdempotencyKey != "" && isUniqueViolation(err) {
			existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				s.logger.Info("Duplicate order create lost the insert race",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.String("order_id", existing.ID))
				return existing, nil
			}
		}

		util.OrdersFailedTotal.WithLabelValues("store_error").Inc()
		return nil, &models.DownstreamUnavailableError{System: "order store", Err: err}
	}

	if req.IdempotencyKey != "" {
		if err := s.idem.SetIdempotencyKey(ctx, req.IdempotencyKey, order.ID, s.idempotencyKeyTTL); err != nil {
			s.logger.Warn("Failed to record idempotency key", zap.Error(err))
		}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("reservation_id", res.ID),
		zap.Int64("total_cents", order.TotalCents))
	return order, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	// Redis answers the common duplicate fast; the database stays
	// authoritative.
	if seen, err := s.idem.CheckIdempotencyKey(ctx, key); err != nil {
		s.logger.Warn("Idempotency key check failed, using store", zap.Error(err))
	} else if !seen {
		return nil, nil
	}
	return s.store.GetOrderByIdempotencyKey(ctx, key)
}

func (s *OrderService) resolveMenuItems(ctx context.Context, items []OrderItemRequest) (map[string]*models.MenuItem, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.MenuItemID)
	}

	menuItems, err := s.store.GetMenuItemsByIDs(ctx, ids)
	if err != nil {
		return nil, &models.DownstreamUnavailableError{System: "menu store", Err: err}
	}

	byID := make(map[string]*models.MenuItem, len(menuItems))
	for i := range menuItems {
		byID[menuItems[i].ID] = &menuItems[i]
	}

	for _, item := range items {
		mi, ok := byID[item.MenuItemID]
		if !ok {
			return nil, &models.NotFoundError{Entity: "menu item", ID: item.MenuItemID}
		}
		if !mi.IsAvailable {
			return nil, models.NewValidationError("items", fmt.Sprintf("menu item %s is not available", mi.Name))
		}
	}
	return byID, nil
}

func (s *OrderService) buildOrder(orderID string, req *CreateOrderRequest, reservationID string, menuItems map[string]*models.MenuItem) *models.Order {
	order := &models.Order{
		ID:             orderID,
		OrderNumber:    generateOrderNumber(),
		TableNumber:    req.TableNumber,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		OrderType:      req.OrderType,
		WaiterID:       req.WaiterID,
		WaiterName:     req.WaiterName,
		Status:         models.OrderStatusPending,
		ReservationID:  reservationID,
		IdempotencyKey: req.IdempotencyKey,
		Notes:          req.Notes,
	}

	for _, item := range req.Items {
		mi := menuItems[item.MenuItemID]
		order.Items = append(order.Items, models.OrderItem{
			ID:                  uuid.New().String(),
			OrderID:             orderID,
			MenuItemID:          mi.ID,
			MenuItemName:        mi.Name,
			Quantity:            item.Quantity,
			UnitPriceCents:      mi.PriceCents,
			TotalPriceCents:     mi.PriceCents * int64(item.Quantity),
			Status:              models.ItemStatusPending,
			SpecialInstructions: item.SpecialInstructions,
			PreparationTime:     mi.PreparationTime,
		})
		if mi.PreparationTime > order.EstimatedPrep {
			order.EstimatedPrep = mi.PreparationTime
		}
	}

	order.SubtotalCents, order.TaxCents, order.TotalCents = CalculateTotals(order.Items, s.taxRateBps)
	return order
}

// CalculateTotals derives subtotal, tax and total from item snapshots.
// taxRateBps is in basis points; tax is rounded half up.
func CalculateTotals(items []models.OrderItem, taxRateBps int64) (subtotal, tax, total int64) {
	for _, item := range items {
		subtotal += item.TotalPriceCents
	}
	tax = (subtotal*taxRateBps + 5000) / 10000
	total = subtotal + tax
	return subtotal, tax, total
}

func generateOrderNumber() string {
	millis := time.Now().UnixMilli() % 1000000
	return fmt.Sprintf("ORD%06d%02d", millis, rand.Intn(100))
}

// Transition moves an order to a new status. Reaching confirmed commits
// the order's stock reservation in the same transaction as the status
// change, so a failure anywhere leaves the order pending with its hold
// intact. Reaching cancelled releases the reservation before the caller
// is acknowledged, so stock reads after a cancel confirmation already
// see the returned quantities.
func (s *OrderService) Transition(ctx context.Context, orderID string, to models.OrderStatus, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Transition")
	defer span.End()

	if !to.Valid() {
		return nil, models.NewValidationError("status", "unknown status "+to.String())
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !from.CanTransitionTo(to) {
		return nil, &models.InvalidTransitionError{Entity: "order", From: from.String(), To: to.String()}
	}

	// Order-level invariants over item states.
	if to == models.OrderStatusReady && !models.AllItemsAtLeastReady(order.Items) {
		return nil, &models.InvalidTransitionError{Entity: "order", From: from.String(), To: to.String()}
	}
	if to == models.OrderStatusServed && !models.AllItemsServed(order.Items) {
		return nil, &models.InvalidTransitionError{Entity: "order", From: from.String(), To: to.String()}
	}

	payload := models.OrderStatusChangedPayload{
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          to,
		Reason:      reason,
		TotalCents:  order.TotalCents,
		TableNumber: order.TableNumber,
	}
	event, err := models.NewEvent(uuid.New().String(), models.EventTypeOrderStatusChange, orderID, time.Now(), payload)
	if err != nil {
		return nil, err
	}

	var ok bool
	if to == models.OrderStatusConfirmed {
		ok, err = s.store.ConfirmOrder(ctx, orderID, from, order.ReservationID, event)
	} else {
		ok, err = s.store.TransitionOrder(ctx, orderID, from, to, event)
	}
	if err != nil {
		var notFound *models.ReservationNotFoundError
		var state *models.InvalidStateError
		if errors.As(err, &notFound) || errors.As(err, &state) {
			return nil, err
		}
		return nil, &models.DownstreamUnavailableError{System: "order store", Err: err}
	}
	if !ok {
		return nil, &models.InvalidStateError{Entity: "order", ID: orderID, State: "changed concurrently", Op: "transition"}
	}
	if to == models.OrderStatusConfirmed {
		util.ReservationsCommittedTotal.Inc()
	}

	// The cancellation is durable before the stock goes back, so a guard
	// miss can never return stock belonging to a confirmed order. The
	// caller is not acknowledged until the release completes.
	if to == models.OrderStatusCancelled {
		if err := s.engine.Release(ctx, order.ReservationID); err != nil {
			// Already released, by the expiry sweep or by a racing
			// transition's rollback; the stock is back in the pool.
			var invalid *models.InvalidStateError
			if !errors.As(err, &invalid) {
				return nil, err
			}
			s.logger.Info("Reservation already released before cancel",
				zap.String("order_id", orderID),
				zap.String("reservation_id", order.ReservationID))
		}
	}

	util.OrderTransitionsTotal.WithLabelValues(to.String()).Inc()
	s.logger.Info("Order transitioned",
		zap.String("order_id", orderID),
		zap.String("from", from.String()),
		zap.String("to", to.String()))

	return s.store.GetOrderByID(ctx, orderID)
}

// TransitionItem moves one order item to a new status, bounded by its
// parent order's status, then auto-advances the order when the
// deterministic policy applies (see models.NextOrderStatus).
func (s *OrderService) TransitionItem(ctx context.Context, orderID, itemID string, to models.ItemStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TransitionItem")
	defer span.End()

	if !to.Valid() {
		return nil, models.NewValidationError("status", "unknown item status "+to.String())
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var item *models.OrderItem
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			item = &order.Items[i]
			break
		}
	}
	if item == nil {
		return nil, &models.NotFoundError{Entity: "order item", ID: itemID}
	}

	from := item.Status
	if !from.CanTransitionTo(to) {
		return nil, &models.InvalidTransitionError{Entity: "item", From: from.String(), To: to.String()}
	}
	if !models.ItemStatusAllowed(order.Status, to) {
		return nil, &models.InvalidTransitionError{Entity: "item", From: from.String(), To: to.String()}
	}

	payload := models.ItemStatusChangedPayload{
		ItemID:       itemID,
		MenuItemName: item.MenuItemName,
		From:         from,
		To:           to,
	}
	event, err := models.NewEvent(uuid.New().String(), models.EventTypeItemStatusChange, orderID, time.Now(), payload)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.TransitionOrderItem(ctx, orderID, itemID, from, to, event)
	if err != nil {
		return nil, &models.DownstreamUnavailableError{System: "order store", Err: err}
	}
	if !ok {
		return nil, &models.InvalidStateError{Entity: "order item", ID: itemID, State: "changed concurrently", Op: "transition"}
	}

	util.OrderItemTransitionsTotal.WithLabelValues(to.String()).Inc()
	item.Status = to

	if next, advance := models.NextOrderStatus(order.Status, order.Items); advance {
		if _, err := s.Transition(ctx, orderID, next, "auto-advanced by item progress"); err != nil {
			// The item transition itself committed; surface the order
			// advance failure without undoing it.
			return nil, err
		}
	}

	return s.store.GetOrderByID(ctx, orderID)
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// ListOrders retrieves orders matching the filter
func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	return s.store.ListOrders(ctx, filter)
}

// ListDeadEvents returns dead-lettered outbox events for operational
// inspection. Dead events were never delivered to the broker.
func (s *OrderService) ListDeadEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	return s.store.ListDeadEvents(ctx, limit)
}
