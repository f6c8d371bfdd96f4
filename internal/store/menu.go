package store

import (
	"context"
	"database/sql"
	"fmt"

	"restopos/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetMenuItem retrieves a menu item by ID
func (s *Store) GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error) {
	var item models.MenuItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM menu_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "menu item", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListMenuItems retrieves menu items matching the filter
func (s *Store) ListMenuItems(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error) {
	query := "SELECT * FROM menu_items WHERE 1=1"
	args := []interface{}{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.AvailableOnly {
		query += " AND is_available = TRUE"
	}
	query += " ORDER BY category, name"

	var items []models.MenuItem
	err := s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

// GetMenuItemsByIDs retrieves multiple menu items by IDs
func (s *Store) GetMenuItemsByIDs(ctx context.Context, ids []string) ([]models.MenuItem, error) {
	if len(ids) == 0 {
		return []models.MenuItem{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM menu_items WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.MenuItem
	err = s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

// CreateMenuItem creates a new menu item
func (s *Store) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	query := `
		INSERT INTO menu_items (id, name, description, price_cents, category, preparation_time, is_available, allergens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		item.ID, item.Name, item.Description, item.PriceCents,
		item.Category, item.PreparationTime, item.IsAvailable, item.Allergens)
	return row.Scan(&item.CreatedAt, &item.UpdatedAt)
}

// UpdateMenuItem updates a menu item. Disabling via is_available is the
// only removal path once an item is referenced by historical orders.
func (s *Store) UpdateMenuItem(ctx context.Context, item *models.MenuItem) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE menu_items
		SET name = $1, description = $2, price_cents = $3, category = $4,
		    preparation_time = $5, is_available = $6, allergens = $7, updated_at = NOW()
		WHERE id = $8`,
		item.Name, item.Description, item.PriceCents, item.Category,
		item.PreparationTime, item.IsAvailable, item.Allergens, item.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.NotFoundError{Entity: "menu item", ID: item.ID}
	}
	return nil
}

// GetRecipe retrieves the ordered ingredient requirements of a menu item
func (s *Store) GetRecipe(ctx context.Context, menuItemID string) ([]models.RecipeLine, error) {
	var lines []models.RecipeLine
	err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM menu_item_recipes WHERE menu_item_id = $1 ORDER BY position", menuItemID)
	return lines, err
}

// GetRecipesByMenuIDs retrieves recipe lines for multiple menu items
func (s *Store) GetRecipesByMenuIDs(ctx context.Context, ids []string) ([]models.RecipeLine, error) {
	if len(ids) == 0 {
		return []models.RecipeLine{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM menu_item_recipes WHERE menu_item_id IN (?) ORDER BY menu_item_id, position", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var lines []models.RecipeLine
	err = s.db.SelectContext(ctx, &lines, query, args...)
	return lines, err
}

// SetRecipe replaces the recipe of a menu item
func (s *Store) SetRecipe(ctx context.Context, menuItemID string, lines []models.RecipeLine) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM menu_item_recipes WHERE menu_item_id = $1", menuItemID); err != nil {
		return err
	}

	for i, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO menu_item_recipes (menu_item_id, ingredient_id, quantity, unit, position)
			VALUES ($1, $2, $3, $4, $5)`,
			menuItemID, line.IngredientID, line.Quantity, line.Unit, i); err != nil {
			return fmt.Errorf("failed to insert recipe line: %w", err)
		}
	}

	return tx.Commit()
}

// GetIngredient retrieves an ingredient by ID
func (s *Store) GetIngredient(ctx context.Context, id string) (*models.Ingredient, error) {
	var ing models.Ingredient
	err := s.db.GetContext(ctx, &ing, "SELECT * FROM ingredients WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "ingredient", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &ing, nil
}

// ListIngredients retrieves all ingredients, optionally only those at or
// below minimum stock
func (s *Store) ListIngredients(ctx context.Context, lowStockOnly bool) ([]models.Ingredient, error) {
	query := "SELECT * FROM ingredients"
	if lowStockOnly {
		query += " WHERE current_stock <= minimum_stock"
	}
	query += " ORDER BY name"

	var ings []models.Ingredient
	err := s.db.SelectContext(ctx, &ings, query)
	return ings, err
}

// CreateIngredient creates a new ingredient
func (s *Store) CreateIngredient(ctx context.Context, ing *models.Ingredient) error {
	query := `
		INSERT INTO ingredients (id, name, unit, current_stock, minimum_stock, maximum_stock, unit_cost_cents, supplier, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		ing.ID, ing.Name, ing.Unit, ing.CurrentStock, ing.MinimumStock,
		ing.MaximumStock, ing.UnitCostCents, ing.Supplier, ing.ExpiryDate)
	return row.Scan(&ing.CreatedAt, &ing.UpdatedAt)
}

// AdjustStock applies a direct stock delta outside the reservation flow.
// The guard runs inside the single UPDATE so concurrent adjustments and
// reservations never observe an intermediate value; a subtractive delta
// may not overdraw the unreserved pool. Restocks update last_restocked.
func (s *Store) AdjustStock(ctx context.Context, ingredientID string, delta float64) error {
	var query string
	if delta >= 0 {
		query = `
			UPDATE ingredients
			SET current_stock = current_stock + $1, last_restocked = NOW(), updated_at = NOW()
			WHERE id = $2`
	} else {
		query = `
			UPDATE ingredients
			SET current_stock = current_stock + $1, updated_at = NOW()
			WHERE id = $2 AND current_stock - reserved + $1 >= 0`
	}

	res, err := s.db.ExecContext(ctx, query, delta, ingredientID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Distinguish a missing ingredient from an overdraw.
	ing, err := s.GetIngredient(ctx, ingredientID)
	if err != nil {
		return err
	}
	return &models.InsufficientStockError{Shortfalls: []models.StockShortfall{{
		IngredientID: ing.ID,
		Name:         ing.Name,
		Unit:         ing.Unit,
		Required:     -delta,
		Available:    ing.Available(),
		Shortfall:    -delta - ing.Available(),
	}}}
}

// GetIngredientsByIDs retrieves multiple ingredients by IDs
func (s *Store) GetIngredientsByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	if len(ids) == 0 {
		return []models.Ingredient{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM ingredients WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var ings []models.Ingredient
	err = s.db.SelectContext(ctx, &ings, query, args...)
	return ings, err
}
