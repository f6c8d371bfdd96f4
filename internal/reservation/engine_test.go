package reservation

import (
	"testing"

	"restopos/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateRequirements_SumsAcrossLines(t *testing.T) {
	recipes := []models.RecipeLine{
		{MenuItemID: "burger", IngredientID: "beef", Quantity: 0.2},
		{MenuItemID: "burger", IngredientID: "bun", Quantity: 1},
		{MenuItemID: "burger", IngredientID: "cheese", Quantity: 0.05},
		{MenuItemID: "cheese-fries", IngredientID: "potato", Quantity: 0.3},
		{MenuItemID: "cheese-fries", IngredientID: "cheese", Quantity: 0.1},
	}
	lines := []Line{
		{MenuItemID: "burger", Quantity: 2},
		{MenuItemID: "cheese-fries", Quantity: 1},
	}

	required, err := AggregateRequirements(recipes, lines)
	require.NoError(t, err)

	byID := make(map[string]float64)
	for _, r := range required {
		byID[r.IngredientID] = r.Quantity
	}
	assert.InDelta(t, 0.4, byID["beef"], 1e-9)
	assert.InDelta(t, 2, byID["bun"], 1e-9)
	assert.InDelta(t, 0.2, byID["cheese"], 1e-9)
	assert.InDelta(t, 0.3, byID["potato"], 1e-9)
}

func TestAggregateRequirements_SortedByIngredientID(t *testing.T) {
	recipes := []models.RecipeLine{
		{MenuItemID: "m", IngredientID: "zucchini", Quantity: 1},
		{MenuItemID: "m", IngredientID: "apple", Quantity: 1},
		{MenuItemID: "m", IngredientID: "miso", Quantity: 1},
	}

	required, err := AggregateRequirements(recipes, []Line{{MenuItemID: "m", Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, required, 3)
	assert.Equal(t, "apple", required[0].IngredientID)
	assert.Equal(t, "miso", required[1].IngredientID)
	assert.Equal(t, "zucchini", required[2].IngredientID)
}

func TestAggregateRequirements_RejectsZeroQuantity(t *testing.T) {
	_, err := AggregateRequirements(nil, []Line{{MenuItemID: "m", Quantity: 0}})

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAggregateRequirements_RecipelessItem(t *testing.T) {
	required, err := AggregateRequirements(nil, []Line{{MenuItemID: "bottled-water", Quantity: 3}})
	require.NoError(t, err)
	assert.Empty(t, required)
}
