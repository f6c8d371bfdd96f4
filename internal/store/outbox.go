package store

import (
	"context"
	"fmt"
	"time"

	"restopos/internal/models"

	"github.com/jmoiron/sqlx"
)

// insertOutboxTx appends an event to the outbox inside the caller's
// transaction. Events become visible to the dispatcher only once the
// surrounding state change commits.
func (s *Store) insertOutboxTx(ctx context.Context, tx *sqlx.Tx, event models.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (event_id, event_type, order_id, payload, occurred_at, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		event.EventID, event.EventType, event.OrderID, []byte(event.Payload), event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingEvents returns due outbox events in occurrence order. An
// event is held back while an earlier event for the same order is still
// unpublished, preserving per-order delivery order across retries.
func (s *Store) FetchPendingEvents(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM outbox o
		WHERE o.published_at IS NULL AND o.dead_at IS NULL AND o.next_attempt_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM outbox p
			WHERE p.order_id = o.order_id
			  AND p.published_at IS NULL AND p.dead_at IS NULL
			  AND p.occurred_at < o.occurred_at
		  )
		ORDER BY o.occurred_at
		LIMIT $2`,
		now, limit)
	return events, err
}

// MarkEventPublished records successful delivery of an outbox event
func (s *Store) MarkEventPublished(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox SET published_at = NOW() WHERE event_id = $1", eventID)
	return err
}

// RecordEventFailure bumps the attempt counter and schedules the retry
func (s *Store) RecordEventFailure(ctx context.Context, eventID string, nextAttempt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox SET attempts = attempts + 1, next_attempt_at = $1 WHERE event_id = $2",
		nextAttempt, eventID)
	return err
}

// MarkEventDead moves an event to the dead-letter state. Dead events stay
// in the table for operational inspection and are never delivered again.
func (s *Store) MarkEventDead(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox SET dead_at = NOW(), attempts = attempts + 1 WHERE event_id = $1", eventID)
	return err
}

// ListDeadEvents returns dead-lettered events for operational review
func (s *Store) ListDeadEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM outbox WHERE dead_at IS NOT NULL ORDER BY dead_at DESC LIMIT $1", limit)
	return events, err
}
