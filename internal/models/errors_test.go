package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{Shortfalls: []StockShortfall{
		{Name: "beef", Unit: "kg", Required: 3, Available: 2, Shortfall: 1},
		{Name: "buns", Unit: "pcs", Required: 6, Available: 4, Shortfall: 2},
	}}

	assert.Equal(t, "insufficient stock: beef short 1.00 kg, buns short 2.00 pcs", err.Error())
}

func TestDownstreamUnavailableUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("creating order: %w", &DownstreamUnavailableError{System: "order store", Err: cause})

	var downstream *DownstreamUnavailableError
	assert.ErrorAs(t, err, &downstream)
	assert.ErrorIs(t, err, cause)
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "validation failed: table_number: must be between 1 and 100",
		NewValidationError("table_number", "must be between 1 and 100").Error())
}
