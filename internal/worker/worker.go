package worker

import (
	"context"
	"time"

	"restopos/internal/broker"
	"restopos/internal/models"
	"restopos/internal/reservation"
	"restopos/internal/util"

	"go.uber.org/zap"
)

// ProjectionWorker feeds one projection from a broker consumer.
type ProjectionWorker struct {
	name     string
	consumer *broker.Consumer
	router   *broker.EventRouter
	logger   *zap.Logger
}

// NewProjectionWorker creates a worker consuming the order event stream
// into a projection handler. Each projection runs in its own consumer
// group so the views progress independently.
func NewProjectionWorker(name string, consumer *broker.Consumer, handler broker.EventHandlerFunc, eventTypes ...string) *ProjectionWorker {
	router := broker.NewEventRouter()
	router.On(handler, eventTypes...)

	return &ProjectionWorker{
		name:     name,
		consumer: consumer,
		router:   router,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *ProjectionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting projection worker", zap.String("projection", w.name))
	return w.consumer.StartConsuming(ctx, w.router.HandleMessage)
}

// Stop stops the worker
func (w *ProjectionWorker) Stop() error {
	w.logger.Info("Stopping projection worker", zap.String("projection", w.name))
	return w.consumer.Close()
}

// Sweeper periodically releases stale held reservations so an abandoned
// order cannot lock ingredient stock past its TTL.
type Sweeper struct {
	engine   *reservation.Engine
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a new reservation sweeper
func NewSweeper(engine *reservation.Engine, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Run sweeps until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("Starting reservation sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reservation sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.engine.ExpireStale(ctx, time.Now()); err != nil {
				s.logger.Error("Reservation sweep failed", zap.Error(err))
			}
		}
	}
}

// KitchenEventTypes are the event types the kitchen projection consumes.
var KitchenEventTypes = []string{
	models.EventTypeOrderCreated,
	models.EventTypeOrderStatusChange,
	models.EventTypeItemStatusChange,
}

// BillingEventTypes are the event types the active-orders/billing
// projection consumes.
var BillingEventTypes = []string{
	models.EventTypeOrderCreated,
	models.EventTypeOrderStatusChange,
}
