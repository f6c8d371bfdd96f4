package outbox

import (
	"context"
	"time"

	"restopos/internal/broker"
	"restopos/internal/models"
	"restopos/internal/store"
	"restopos/internal/util"

	"go.uber.org/zap"
)

const (
	fetchBatchSize = 100
	baseBackoff    = 2 * time.Second
	maxBackoff     = 5 * time.Minute
)

// Dispatcher delivers outbox events to the broker. State transitions
// commit their events durably in the same transaction; the dispatcher
// then delivers them with at-least-once semantics, retrying with backoff
// and dead-lettering after maxAttempts so a broker outage can never block
// or silently lose a transition's event.
type Dispatcher struct {
	store       *store.Store
	producer    *broker.Producer
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// NewDispatcher creates a new outbox dispatcher
func NewDispatcher(st *store.Store, producer *broker.Producer, interval time.Duration, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		store:       st,
		producer:    producer,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      util.GetLogger(),
	}
}

// Run polls the outbox until the context is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Starting outbox dispatcher", zap.Duration("interval", d.interval))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := d.dispatchBatch(ctx); err != nil {
				d.logger.Error("Outbox dispatch batch failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) error {
	events, err := d.store.FetchPendingEvents(ctx, time.Now(), fetchBatchSize)
	if err != nil {
		return err
	}

	// An order whose event just failed must not have its later events
	// published in the same batch, or per-order ordering breaks.
	blocked := make(map[string]bool)

	for _, ev := range events {
		if blocked[ev.OrderID] {
			continue
		}

		if err := d.producer.PublishEvent(ctx, ev.Envelope()); err != nil {
			blocked[ev.OrderID] = true
			d.handleFailure(ctx, ev, err)
			continue
		}

		if err := d.store.MarkEventPublished(ctx, ev.EventID); err != nil {
			// The event will be fetched and published again; consumers
			// de-duplicate by event ID.
			d.logger.Error("Failed to mark event published",
				zap.String("event_id", ev.EventID), zap.Error(err))
			blocked[ev.OrderID] = true
			continue
		}
		util.OutboxPublishedTotal.Inc()
	}
	return nil
}

func (d *Dispatcher) handleFailure(ctx context.Context, ev models.OutboxEvent, pubErr error) {
	if ev.Attempts+1 >= d.maxAttempts {
		util.OutboxDeadLetteredTotal.Inc()
		d.logger.Error("Outbox event dead-lettered",
			zap.String("event_id", ev.EventID),
			zap.String("event_type", ev.EventType),
			zap.String("order_id", ev.OrderID),
			zap.Int("attempts", ev.Attempts+1),
			zap.Error(pubErr))
		if err := d.store.MarkEventDead(ctx, ev.EventID); err != nil {
			d.logger.Error("Failed to mark event dead",
				zap.String("event_id", ev.EventID), zap.Error(err))
		}
		return
	}

	util.OutboxRetriesTotal.Inc()
	next := time.Now().Add(BackoffDelay(ev.Attempts))
	d.logger.Warn("Outbox publish failed, scheduling retry",
		zap.String("event_id", ev.EventID),
		zap.Int("attempt", ev.Attempts+1),
		zap.Time("next_attempt_at", next),
		zap.Error(pubErr))
	if err := d.store.RecordEventFailure(ctx, ev.EventID, next); err != nil {
		d.logger.Error("Failed to record event failure",
			zap.String("event_id", ev.EventID), zap.Error(err))
	}
}

// BackoffDelay returns the capped exponential delay before retrying an
// event that has already failed `attempts` times.
func BackoffDelay(attempts int) time.Duration {
	delay := baseBackoff
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
