package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"restopos/internal/models"

	"github.com/jmoiron/sqlx"
)

// ReserveIngredients attempts to hold the requested quantities inside a
// single transaction. Each line is a conditional update guarded by the
// unreserved pool, so no two concurrent attempts can both take the same
// unit of stock; the first transaction to acquire all its lines wins.
// Lines must arrive sorted by ingredient ID to keep lock order stable.
// On insufficiency the whole transaction rolls back and the returned
// shortfall list covers every ingredient that is short.
func (s *Store) ReserveIngredients(ctx context.Context, res *models.StockReservation) ([]models.StockShortfall, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	short := false
	for _, line := range res.Lines {
		r, err := tx.ExecContext(ctx, `
			UPDATE ingredients
			SET reserved = reserved + $1, updated_at = NOW()
			WHERE id = $2 AND current_stock - reserved >= $1`,
			line.Quantity, line.IngredientID)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve ingredient %s: %w", line.IngredientID, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			short = true
			break
		}
	}

	if short {
		// Roll back our partial holds before reading availability so the
		// shortfall report reflects what other reservations actually hold.
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			return nil, err
		}
		return s.computeShortfalls(ctx, res.Lines)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_reservations (id, order_id, state, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		res.ID, res.OrderID, res.State, res.CreatedAt, res.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to insert reservation: %w", err)
	}

	for _, line := range res.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_reservation_lines (reservation_id, ingredient_id, quantity)
			VALUES ($1, $2, $3)`,
			res.ID, line.IngredientID, line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to insert reservation line: %w", err)
		}
	}

	return nil, tx.Commit()
}

// computeShortfalls reports every requested ingredient that cannot be
// covered by the currently unreserved pool. Informational: the pool may
// shift again before the caller retries.
func (s *Store) computeShortfalls(ctx context.Context, lines []models.ReservationLine) ([]models.StockShortfall, error) {
	ids := make([]string, len(lines))
	required := make(map[string]float64, len(lines))
	for i, line := range lines {
		ids[i] = line.IngredientID
		required[line.IngredientID] = line.Quantity
	}

	ings, err := s.GetIngredientsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	known := make(map[string]models.Ingredient, len(ings))
	for _, ing := range ings {
		known[ing.ID] = ing
	}

	var shortfalls []models.StockShortfall
	for _, line := range lines {
		ing, ok := known[line.IngredientID]
		if !ok {
			shortfalls = append(shortfalls, models.StockShortfall{
				IngredientID: line.IngredientID,
				Name:         "unknown ingredient",
				Required:     line.Quantity,
				Shortfall:    line.Quantity,
			})
			continue
		}
		if ing.Available() < required[ing.ID] {
			shortfalls = append(shortfalls, models.StockShortfall{
				IngredientID: ing.ID,
				Name:         ing.Name,
				Unit:         ing.Unit,
				Required:     required[ing.ID],
				Available:    ing.Available(),
				Shortfall:    required[ing.ID] - ing.Available(),
			})
		}
	}

	if len(shortfalls) == 0 {
		// The pool moved between rollback and re-read; report the attempt
		// as contended so the caller retries.
		for _, line := range lines {
			shortfalls = append(shortfalls, models.StockShortfall{
				IngredientID: line.IngredientID,
				Required:     line.Quantity,
			})
		}
	}

	return shortfalls, nil
}

// GetReservation retrieves a reservation with its lines
func (s *Store) GetReservation(ctx context.Context, id string) (*models.StockReservation, error) {
	var res models.StockReservation
	err := s.db.GetContext(ctx, &res, "SELECT * FROM stock_reservations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.ReservationNotFoundError{ReservationID: id}
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &res.Lines,
		"SELECT * FROM stock_reservation_lines WHERE reservation_id = $1 ORDER BY ingredient_id", id)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// commitReservationTx finalizes a held reservation inside the caller's
// transaction: the held quantities are deducted from current_stock and
// the hold is removed. Rolling back the surrounding transaction undoes
// the commit entirely.
func (s *Store) commitReservationTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	r, err := tx.ExecContext(ctx,
		"UPDATE stock_reservations SET state = $1 WHERE id = $2 AND state = $3",
		models.ReservationCommitted, id, models.ReservationHeld)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return s.reservationStateError(ctx, id, "commit")
	}

	var lines []models.ReservationLine
	if err := tx.SelectContext(ctx, &lines,
		"SELECT * FROM stock_reservation_lines WHERE reservation_id = $1 ORDER BY ingredient_id", id); err != nil {
		return err
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			UPDATE ingredients
			SET current_stock = current_stock - $1, reserved = reserved - $1, updated_at = NOW()
			WHERE id = $2`,
			line.Quantity, line.IngredientID); err != nil {
			return fmt.Errorf("failed to commit stock for ingredient %s: %w", line.IngredientID, err)
		}
	}

	return nil
}

// ReleaseReservation returns held quantities to the pool, or performs the
// compensating stock increase for an already-committed reservation.
// Returns the state the reservation was in before release.
func (s *Store) ReleaseReservation(ctx context.Context, id string) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var state string
	err = tx.GetContext(ctx, &state,
		"SELECT state FROM stock_reservations WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return "", &models.ReservationNotFoundError{ReservationID: id}
	}
	if err != nil {
		return "", err
	}
	if state == models.ReservationReleased {
		return "", &models.InvalidStateError{Entity: "reservation", ID: id, State: state, Op: "release"}
	}

	var lines []models.ReservationLine
	if err := tx.SelectContext(ctx, &lines,
		"SELECT * FROM stock_reservation_lines WHERE reservation_id = $1 ORDER BY ingredient_id", id); err != nil {
		return "", err
	}

	var query string
	if state == models.ReservationHeld {
		query = `
			UPDATE ingredients
			SET reserved = reserved - $1, updated_at = NOW()
			WHERE id = $2`
	} else {
		query = `
			UPDATE ingredients
			SET current_stock = current_stock + $1, updated_at = NOW()
			WHERE id = $2`
	}
	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, query, line.Quantity, line.IngredientID); err != nil {
			return "", fmt.Errorf("failed to release stock for ingredient %s: %w", line.IngredientID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE stock_reservations SET state = $1 WHERE id = $2",
		models.ReservationReleased, id); err != nil {
		return "", err
	}

	return state, tx.Commit()
}

// ExpireReservations releases every held reservation past its expiry.
// SKIP LOCKED lets concurrent sweeps and in-flight commits pass each
// other without blocking. Returns the released reservation IDs.
func (s *Store) ExpireReservations(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var ids []string
	if err := tx.SelectContext(ctx, &ids, `
		SELECT id FROM stock_reservations
		WHERE state = $1 AND expires_at < $2
		ORDER BY expires_at
		FOR UPDATE SKIP LOCKED`,
		models.ReservationHeld, now); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Rollback()
	}

	for _, id := range ids {
		var lines []models.ReservationLine
		if err := tx.SelectContext(ctx, &lines,
			"SELECT * FROM stock_reservation_lines WHERE reservation_id = $1 ORDER BY ingredient_id", id); err != nil {
			return nil, err
		}
		for _, line := range lines {
			if _, err := tx.ExecContext(ctx, `
				UPDATE ingredients
				SET reserved = reserved - $1, updated_at = NOW()
				WHERE id = $2`,
				line.Quantity, line.IngredientID); err != nil {
				return nil, fmt.Errorf("failed to expire reservation %s: %w", id, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE stock_reservations SET state = $1 WHERE id = $2",
			models.ReservationReleased, id); err != nil {
			return nil, err
		}
	}

	return ids, tx.Commit()
}

func (s *Store) reservationStateError(ctx context.Context, id, op string) error {
	var state string
	err := s.db.GetContext(ctx, &state,
		"SELECT state FROM stock_reservations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return &models.ReservationNotFoundError{ReservationID: id}
	}
	if err != nil {
		return err
	}
	return &models.InvalidStateError{Entity: "reservation", ID: id, State: state, Op: op}
}
