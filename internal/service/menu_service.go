package service

import (
	"context"
	"time"

	"restopos/internal/models"
	"restopos/internal/redisclient"
	"restopos/internal/store"
	"restopos/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const menuCacheKey = "menu"

// MenuService owns menu items, ingredient stock and the recipe
// association between them. Stock mutation outside this service goes
// through the reservation engine; the only direct path is AdjustStock,
// whose guard runs inside a single SQL statement per ingredient.
type MenuService struct {
	store    *store.Store
	redis    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewMenuService creates a new menu service
func NewMenuService(st *store.Store, redis *redisclient.Client, cacheTTL time.Duration) *MenuService {
	return &MenuService{
		store:    st,
		redis:    redis,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// GetMenuItem retrieves one menu item
func (s *MenuService) GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error) {
	return s.store.GetMenuItem(ctx, id)
}

// ListMenuItems retrieves menu items matching the filter. The unfiltered
// listing is served cache-aside from Redis since it is the dashboard's
// hottest read.
func (s *MenuService) ListMenuItems(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error) {
	cacheable := filter.Category == "" && !filter.AvailableOnly

	if cacheable {
		var cached []models.MenuItem
		hit, err := s.redis.CacheGet(ctx, menuCacheKey, &cached)
		if err != nil {
			s.logger.Warn("Menu cache read failed, falling back to store", zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	items, err := s.store.ListMenuItems(ctx, filter)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.redis.CacheSet(ctx, menuCacheKey, items, s.cacheTTL); err != nil {
			s.logger.Warn("Menu cache write failed", zap.Error(err))
		}
	}
	return items, nil
}

// CreateMenuItem creates a new menu item
func (s *MenuService) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	if err := validateMenuItem(item); err != nil {
		return err
	}

	item.ID = uuid.New().String()
	if err := s.store.CreateMenuItem(ctx, item); err != nil {
		return err
	}

	s.invalidateMenuCache(ctx)
	s.logger.Info("Menu item created",
		zap.String("menu_item_id", item.ID),
		zap.String("name", item.Name))
	return nil
}

// UpdateMenuItem updates a menu item. Items referenced by historical
// orders are disabled via is_available, never deleted.
func (s *MenuService) UpdateMenuItem(ctx context.Context, item *models.MenuItem) error {
	if err := validateMenuItem(item); err != nil {
		return err
	}

	if err := s.store.UpdateMenuItem(ctx, item); err != nil {
		return err
	}

	s.invalidateMenuCache(ctx)
	return nil
}

func (s *MenuService) invalidateMenuCache(ctx context.Context) {
	if err := s.redis.CacheInvalidate(ctx, menuCacheKey); err != nil {
		s.logger.Warn("Menu cache invalidation failed", zap.Error(err))
	}
}

func validateMenuItem(item *models.MenuItem) error {
	if item.Name == "" {
		return models.NewValidationError("name", "must not be empty")
	}
	if !models.ValidCategory(item.Category) {
		return models.NewValidationError("category", "unknown category "+item.Category)
	}
	if item.PriceCents < 0 {
		return models.NewValidationError("price_cents", "must be non-negative")
	}
	if item.PreparationTime < 1 {
		return models.NewValidationError("preparation_time", "must be at least 1 minute")
	}
	return nil
}

// GetRecipe retrieves the ordered ingredient requirements of a menu item
func (s *MenuService) GetRecipe(ctx context.Context, menuItemID string) ([]models.RecipeLine, error) {
	if _, err := s.store.GetMenuItem(ctx, menuItemID); err != nil {
		return nil, err
	}
	return s.store.GetRecipe(ctx, menuItemID)
}

// SetRecipe replaces the recipe of a menu item
func (s *MenuService) SetRecipe(ctx context.Context, menuItemID string, lines []models.RecipeLine) error {
	if _, err := s.store.GetMenuItem(ctx, menuItemID); err != nil {
		return err
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return models.NewValidationError("quantity", "must be positive for ingredient "+line.IngredientID)
		}
		if line.Unit == "" {
			return models.NewValidationError("unit", "must not be empty for ingredient "+line.IngredientID)
		}
		if _, err := s.store.GetIngredient(ctx, line.IngredientID); err != nil {
			return err
		}
	}
	return s.store.SetRecipe(ctx, menuItemID, lines)
}

// GetIngredient retrieves one ingredient
func (s *MenuService) GetIngredient(ctx context.Context, id string) (*models.Ingredient, error) {
	return s.store.GetIngredient(ctx, id)
}

// ListIngredients retrieves ingredients, optionally only low-stock ones
func (s *MenuService) ListIngredients(ctx context.Context, lowStockOnly bool) ([]models.Ingredient, error) {
	return s.store.ListIngredients(ctx, lowStockOnly)
}

// CreateIngredient creates a new ingredient
func (s *MenuService) CreateIngredient(ctx context.Context, ing *models.Ingredient) error {
	if ing.Name == "" {
		return models.NewValidationError("name", "must not be empty")
	}
	if ing.Unit == "" {
		return models.NewValidationError("unit", "must not be empty")
	}
	if ing.CurrentStock < 0 {
		return models.NewValidationError("current_stock", "must be non-negative")
	}
	if ing.MaximumStock <= ing.MinimumStock {
		return models.NewValidationError("maximum_stock", "must be greater than minimum_stock")
	}

	ing.ID = uuid.New().String()
	return s.store.CreateIngredient(ctx, ing)
}

// AdjustStock applies a direct restock or manual correction outside the
// reservation flow. A subtractive delta that would overdraw the
// unreserved pool fails with InsufficientStockError.
func (s *MenuService) AdjustStock(ctx context.Context, ingredientID string, delta float64, reason string) error {
	if delta == 0 {
		return models.NewValidationError("delta", "must not be zero")
	}
	if reason == "" {
		return models.NewValidationError("reason", "must not be empty")
	}

	if err := s.store.AdjustStock(ctx, ingredientID, delta); err != nil {
		return err
	}

	direction := "restock"
	if delta < 0 {
		direction = "consume"
	}
	util.StockAdjustmentsTotal.WithLabelValues(direction).Inc()
	s.logger.Info("Stock adjusted",
		zap.String("ingredient_id", ingredientID),
		zap.Float64("delta", delta),
		zap.String("reason", reason))
	return nil
}
