package reservation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"restopos/internal/models"
	"restopos/internal/store"
	"restopos/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Line is one menu item request inside a candidate order.
type Line struct {
	MenuItemID string
	Quantity   int
}

// Engine holds, releases and expires ingredient stock reservations for
// orders; committing a hold happens atomically with the order's confirm
// transition in the store. All stock mutation funnels through these
// paths (plus the separate AdjustStock path), and every multi-ingredient
// operation is a single database transaction: two orders competing for
// the same ingredients can never both take the last unit.
type Engine struct {
	store  *store.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewEngine creates a new reservation engine
func NewEngine(st *store.Store, ttl time.Duration) *Engine {
	return &Engine{
		store:  st,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// TryReserve expands each requested menu item into its recipe, aggregates
// the required quantities per ingredient across all lines, and holds them
// atomically: either every ingredient has enough unreserved stock or the
// whole attempt fails with the full shortfall list and no side effects.
func (e *Engine) TryReserve(ctx context.Context, orderID string, lines []Line) (*models.StockReservation, error) {
	ctx, span := util.StartSpan(ctx, "Engine.TryReserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReserveLatency.Observe(time.Since(start).Seconds())
	}()

	menuIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		menuIDs = append(menuIDs, line.MenuItemID)
	}

	recipes, err := e.store.GetRecipesByMenuIDs(ctx, menuIDs)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("recipe_lookup").Inc()
		return nil, &models.DownstreamUnavailableError{System: "menu store", Err: err}
	}

	required, err := AggregateRequirements(recipes, lines)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("invalid_lines").Inc()
		return nil, err
	}
	if len(required) == 0 {
		// Orders made entirely of recipe-less items (e.g. bottled drinks
		// tracked as their own ingredient-free menu entries) still get a
		// reservation so confirm/cancel run the same path.
		e.logger.Debug("Order requires no ingredients", zap.String("order_id", orderID))
	}

	now := time.Now()
	res := &models.StockReservation{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		State:     models.ReservationHeld,
		CreatedAt: now,
		ExpiresAt: now.Add(e.ttl),
		Lines:     required,
	}

	shortfalls, err := e.store.ReserveIngredients(ctx, res)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("store_error").Inc()
		return nil, &models.DownstreamUnavailableError{System: "inventory store", Err: err}
	}
	if len(shortfalls) > 0 {
		util.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		e.logger.Info("Reservation rejected: insufficient stock",
			zap.String("order_id", orderID),
			zap.Int("shortfalls", len(shortfalls)))
		return nil, &models.InsufficientStockError{Shortfalls: shortfalls}
	}

	util.ReservationsHeldTotal.Inc()
	e.logger.Info("Stock reserved",
		zap.String("reservation_id", res.ID),
		zap.String("order_id", orderID),
		zap.Int("ingredients", len(required)),
		zap.Time("expires_at", res.ExpiresAt))
	return res, nil
}

// Release returns a held reservation's quantities to the pool, or applies
// the compensating stock increase for a committed one (cancellation after
// confirmation).
func (e *Engine) Release(ctx context.Context, reservationID string) error {
	ctx, span := util.StartSpan(ctx, "Engine.Release")
	defer span.End()

	prior, err := e.store.ReleaseReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	cause := "held"
	if prior == models.ReservationCommitted {
		cause = "compensation"
	}
	util.ReservationsReleasedTotal.WithLabelValues(cause).Inc()
	e.logger.Info("Reservation released",
		zap.String("reservation_id", reservationID),
		zap.String("prior_state", prior))
	return nil
}

// ExpireStale releases held reservations past their expiry, bounding how
// long an abandoned order can lock stock. Returns the number released.
func (e *Engine) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	ids, err := e.store.ExpireReservations(ctx, now)
	if err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		util.ReservationsReleasedTotal.WithLabelValues("expired").Add(float64(len(ids)))
		e.logger.Info("Expired stale reservations",
			zap.Int("count", len(ids)),
			zap.Strings("reservation_ids", ids))
	}
	return len(ids), nil
}

// Get retrieves a reservation
func (e *Engine) Get(ctx context.Context, reservationID string) (*models.StockReservation, error) {
	return e.store.GetReservation(ctx, reservationID)
}

// AggregateRequirements sums per-ingredient quantities across every line
// of a candidate order. The same ingredient reached through multiple menu
// items accumulates into one requirement. The result is sorted by
// ingredient ID so concurrent reservations acquire row locks in the same
// order.
func AggregateRequirements(recipes []models.RecipeLine, lines []Line) ([]models.ReservationLine, error) {
	byMenuItem := make(map[string][]models.RecipeLine)
	for _, r := range recipes {
		byMenuItem[r.MenuItemID] = append(byMenuItem[r.MenuItemID], r)
	}

	totals := make(map[string]float64)
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, models.NewValidationError("quantity",
				fmt.Sprintf("must be at least 1 for menu item %s", line.MenuItemID))
		}
		for _, r := range byMenuItem[line.MenuItemID] {
			totals[r.IngredientID] += r.Quantity * float64(line.Quantity)
		}
	}

	required := make([]models.ReservationLine, 0, len(totals))
	for id, qty := range totals {
		required = append(required, models.ReservationLine{IngredientID: id, Quantity: qty})
	}
	sort.Slice(required, func(i, j int) bool {
		return required[i].IngredientID < required[j].IngredientID
	})
	return required, nil
}
