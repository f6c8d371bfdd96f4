package models

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed or out-of-range input. It is
// returned synchronously and never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StockShortfall describes how much of one ingredient is missing for a
// rejected reservation or adjustment.
type StockShortfall struct {
	IngredientID string  `json:"ingredient_id"`
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	Required     float64 `json:"required"`
	Available    float64 `json:"available"`
	Shortfall    float64 `json:"shortfall"`
}

// InsufficientStockError rejects a reservation or subtractive adjustment
// that would overdraw ingredient stock. It is never partially applied:
// either every line of the attempt succeeded or none did.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortfalls) == 0 {
		return "insufficient stock"
	}
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s short %.2f %s", s.Name, s.Shortfall, s.Unit))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// InvalidTransitionError rejects an illegal order or item status
// transition. State and timestamps are left untouched.
type InvalidTransitionError struct {
	Entity string // "order" or "item"
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

// ReservationNotFoundError indicates the caller referenced a reservation
// that does not exist.
type ReservationNotFoundError struct {
	ReservationID string
}

func (e *ReservationNotFoundError) Error() string {
	return fmt.Sprintf("reservation not found: %s", e.ReservationID)
}

// InvalidStateError indicates an operation against a reservation or
// order in the wrong state, e.g. committing an already-released
// reservation. Surfaced to clients as a conflict.
type InvalidStateError struct {
	Entity string
	ID     string
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Op, e.Entity, e.ID, e.State)
}

// NotFoundError indicates a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// DownstreamUnavailableError indicates a required collaborator (database,
// broker) was unreachable. Order creation fails closed on it.
type DownstreamUnavailableError struct {
	System string
	Err    error
}

func (e *DownstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.System, e.Err)
}

func (e *DownstreamUnavailableError) Unwrap() error {
	return e.Err
}
