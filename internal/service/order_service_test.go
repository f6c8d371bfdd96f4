package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"restopos/internal/models"
	"restopos/internal/reservation"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateTotals(t *testing.T) {
	items := []models.OrderItem{
		{TotalPriceCents: 2500},
		{TotalPriceCents: 1200},
	}

	subtotal, tax, total := CalculateTotals(items, 1000)
	assert.Equal(t, int64(3700), subtotal)
	assert.Equal(t, int64(370), tax)
	assert.Equal(t, int64(4070), total)
}

func TestCalculateTotals_RoundsHalfUp(t *testing.T) {
	// 1005 * 10% = 100.5, rounds to 101.
	subtotal, tax, total := CalculateTotals([]models.OrderItem{{TotalPriceCents: 1005}}, 1000)
	assert.Equal(t, int64(1005), subtotal)
	assert.Equal(t, int64(101), tax)
	assert.Equal(t, int64(1106), total)
}

func TestCalculateTotals_ZeroRate(t *testing.T) {
	subtotal, tax, total := CalculateTotals([]models.OrderItem{{TotalPriceCents: 999}}, 0)
	assert.Equal(t, int64(999), subtotal)
	assert.Equal(t, int64(0), tax)
	assert.Equal(t, int64(999), total)
}

func TestGenerateOrderNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD\d{8}$`)
	for i := 0; i < 10; i++ {
		n := generateOrderNumber()
		assert.Regexp(t, pattern, n)
	}
}

func validRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		TableNumber: 12,
		WaiterID:    "w-1",
		WaiterName:  "Sam",
		Items: []OrderItemRequest{
			{MenuItemID: "burger", Quantity: 2},
		},
	}
}

func TestValidateCreateRequest(t *testing.T) {
	assert.NoError(t, validateCreateRequest(validRequest()))
}

func TestValidateCreateRequest_DefaultsOrderType(t *testing.T) {
	req := validRequest()
	assert.NoError(t, validateCreateRequest(req))
	assert.Equal(t, models.OrderTypeDineIn, req.OrderType)
}

type fakeOrderStore struct {
	orders    map[string]*models.Order
	byKey     map[string]*models.Order
	menuItems map[string]models.MenuItem

	createErr           error
	confirmFailures     int
	confirmGuardMiss    bool
	confirmCalls        int
	transitionGuardMiss bool
	itemGuardMiss       bool
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders: map[string]*models.Order{},
		byKey:  map[string]*models.Order{},
		menuItems: map[string]models.MenuItem{
			"burger": {ID: "burger", Name: "Burger", PriceCents: 1000, IsAvailable: true, PreparationTime: 10},
		},
	}
}

func (f *fakeOrderStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "order", ID: id}
	}
	return o, nil
}

func (f *fakeOrderStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	return f.byKey[key], nil
}

func (f *fakeOrderStore) GetMenuItemsByIDs(_ context.Context, ids []string) ([]models.MenuItem, error) {
	var items []models.MenuItem
	for _, id := range ids {
		if mi, ok := f.menuItems[id]; ok {
			items = append(items, mi)
		}
	}
	return items, nil
}

func (f *fakeOrderStore) CreateOrder(_ context.Context, order *models.Order, _ models.Event) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.orders[order.ID] = order
	if order.IdempotencyKey != "" {
		f.byKey[order.IdempotencyKey] = order
	}
	return nil
}

func (f *fakeOrderStore) ConfirmOrder(_ context.Context, orderID string, from models.OrderStatus, _ string, _ models.Event) (bool, error) {
	f.confirmCalls++
	if f.confirmFailures > 0 {
		f.confirmFailures--
		return false, errors.New("connection reset")
	}
	if f.confirmGuardMiss {
		return false, nil
	}
	f.orders[orderID].Status = models.OrderStatusConfirmed
	return true, nil
}

func (f *fakeOrderStore) TransitionOrder(_ context.Context, orderID string, from, to models.OrderStatus, _ models.Event) (bool, error) {
	if f.transitionGuardMiss {
		return false, nil
	}
	f.orders[orderID].Status = to
	return true, nil
}

func (f *fakeOrderStore) TransitionOrderItem(_ context.Context, orderID, itemID string, from, to models.ItemStatus, _ models.Event) (bool, error) {
	if f.itemGuardMiss {
		return false, nil
	}
	o := f.orders[orderID]
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			o.Items[i].Status = to
		}
	}
	return true, nil
}

func (f *fakeOrderStore) ListOrders(_ context.Context, _ models.OrderFilter) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrderStore) ListDeadEvents(_ context.Context, _ int) ([]models.OutboxEvent, error) {
	return nil, nil
}

type fakeReserver struct {
	nextID     string
	reserveErr error
	released   []string
}

func (f *fakeReserver) TryReserve(_ context.Context, orderID string, _ []reservation.Line) (*models.StockReservation, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return &models.StockReservation{ID: f.nextID, OrderID: orderID}, nil
}

func (f *fakeReserver) Release(_ context.Context, reservationID string) error {
	f.released = append(f.released, reservationID)
	return nil
}

type fakeIdem struct {
	seen map[string]bool
}

func (f *fakeIdem) CheckIdempotencyKey(_ context.Context, key string) (bool, error) {
	return f.seen[key], nil
}

func (f *fakeIdem) SetIdempotencyKey(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[key] = true
	return nil
}

func newTestService(st *fakeOrderStore, engine *fakeReserver) *OrderService {
	return NewOrderService(st, engine, &fakeIdem{}, 1000, time.Minute)
}

func TestCreate_ReservesAndPersists(t *testing.T) {
	st := newFakeOrderStore()
	engine := &fakeReserver{nextID: "res-1"}
	svc := newTestService(st, engine)

	order, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "res-1", order.ReservationID)
	assert.Equal(t, int64(2000), order.SubtotalCents)
	assert.Empty(t, engine.released)
}

func TestCreate_StoreFailureReleasesHold(t *testing.T) {
	st := newFakeOrderStore()
	st.createErr = errors.New("connection reset")
	engine := &fakeReserver{nextID: "res-1"}
	svc := newTestService(st, engine)

	_, err := svc.Create(context.Background(), validRequest())
	var unavailable *models.DownstreamUnavailableError
	assert.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"res-1"}, engine.released)
}

func TestCreate_DuplicateKeyInsertRace(t *testing.T) {
	// Two creates racing on one idempotency key: the loser's insert trips
	// the unique index and must surface the winner's order, with its own
	// hold released.
	st := newFakeOrderStore()
	winner := &models.Order{ID: "o-winner", Status: models.OrderStatusPending, IdempotencyKey: "k-1"}
	st.byKey["k-1"] = winner
	st.createErr = fmt.Errorf("failed to insert order: %w", &pq.Error{Code: "23505"})
	engine := &fakeReserver{nextID: "res-loser"}
	svc := newTestService(st, engine)

	req := validRequest()
	req.IdempotencyKey = "k-1"

	order, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "o-winner", order.ID)
	assert.Equal(t, []string{"res-loser"}, engine.released)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("connection reset")))
}

func pendingOrder(st *fakeOrderStore) *models.Order {
	order := &models.Order{
		ID:            "o-1",
		Status:        models.OrderStatusPending,
		ReservationID: "res-1",
	}
	st.orders[order.ID] = order
	return order
}

func TestTransition_ConfirmFailureLeavesOrderRetryable(t *testing.T) {
	// A store failure during confirm must leave the order pending with
	// its hold intact, so a plain retry of the same transition succeeds.
	st := newFakeOrderStore()
	pendingOrder(st)
	st.confirmFailures = 1
	engine := &fakeReserver{}
	svc := newTestService(st, engine)

	_, err := svc.Transition(context.Background(), "o-1", models.OrderStatusConfirmed, "")
	var unavailable *models.DownstreamUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, models.OrderStatusPending, st.orders["o-1"].Status)
	assert.Empty(t, engine.released)

	order, err := svc.Transition(context.Background(), "o-1", models.OrderStatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, 2, st.confirmCalls)
	assert.Empty(t, engine.released)
}

func TestTransition_ConfirmGuardMiss(t *testing.T) {
	st := newFakeOrderStore()
	pendingOrder(st)
	st.confirmGuardMiss = true
	engine := &fakeReserver{}
	svc := newTestService(st, engine)

	_, err := svc.Transition(context.Background(), "o-1", models.OrderStatusConfirmed, "")
	var state *models.InvalidStateError
	assert.ErrorAs(t, err, &state)
	assert.Empty(t, engine.released)
}

func TestTransition_CancelReleasesReservation(t *testing.T) {
	st := newFakeOrderStore()
	pendingOrder(st)
	engine := &fakeReserver{}
	svc := newTestService(st, engine)

	order, err := svc.Transition(context.Background(), "o-1", models.OrderStatusCancelled, "customer left")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, []string{"res-1"}, engine.released)
}

func TestTransition_CancelGuardMissDoesNotRelease(t *testing.T) {
	// When a concurrent transition wins the guard, the cancel must not
	// touch the reservation the surviving transition may have committed.
	st := newFakeOrderStore()
	pendingOrder(st)
	st.transitionGuardMiss = true
	engine := &fakeReserver{}
	svc := newTestService(st, engine)

	_, err := svc.Transition(context.Background(), "o-1", models.OrderStatusCancelled, "")
	var state *models.InvalidStateError
	assert.ErrorAs(t, err, &state)
	assert.Empty(t, engine.released)
}

func TestTransitionItem_GuardMiss(t *testing.T) {
	// The parent order going terminal between the read and the update
	// surfaces as a conflict, never a silent item advance.
	st := newFakeOrderStore()
	order := pendingOrder(st)
	order.Status = models.OrderStatusPreparing
	order.Items = []models.OrderItem{{ID: "i-1", OrderID: "o-1", Status: models.ItemStatusPending}}
	st.itemGuardMiss = true
	svc := newTestService(st, &fakeReserver{})

	_, err := svc.TransitionItem(context.Background(), "o-1", "i-1", models.ItemStatusPreparing)
	var state *models.InvalidStateError
	assert.ErrorAs(t, err, &state)
	assert.Equal(t, models.ItemStatusPending, st.orders["o-1"].Items[0].Status)
}

func TestValidateCreateRequest_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateOrderRequest)
		field  string
	}{
		{"table too low", func(r *CreateOrderRequest) { r.TableNumber = 0 }, "table_number"},
		{"table too high", func(r *CreateOrderRequest) { r.TableNumber = 101 }, "table_number"},
		{"missing waiter id", func(r *CreateOrderRequest) { r.WaiterID = "" }, "waiter_id"},
		{"missing waiter name", func(r *CreateOrderRequest) { r.WaiterName = "" }, "waiter_name"},
		{"bad order type", func(r *CreateOrderRequest) { r.OrderType = "drive-thru" }, "order_type"},
		{"no items", func(r *CreateOrderRequest) { r.Items = nil }, "items"},
		{"zero quantity", func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 }, "items"},
		{"missing menu item id", func(r *CreateOrderRequest) { r.Items[0].MenuItemID = "" }, "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := validateCreateRequest(req)
			var verr *models.ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
