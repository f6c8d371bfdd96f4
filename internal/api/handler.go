package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"restopos/internal/models"
	"restopos/internal/projection"
	"restopos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	menuService  *service.MenuService
	kitchen      *projection.Kitchen
	activeOrders *projection.ActiveOrders
	jwtSecret    string
}

// NewHandler creates a new HTTP handler. An empty jwtSecret disables
// the auth middleware.
func NewHandler(orderService *service.OrderService, menuService *service.MenuService, kitchen *projection.Kitchen, activeOrders *projection.ActiveOrders, jwtSecret string) *Handler {
	return &Handler{
		orderService: orderService,
		menuService:  menuService,
		kitchen:      kitchen,
		activeOrders: activeOrders,
		jwtSecret:    jwtSecret,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	if h.jwtSecret != "" {
		v1.Use(jwtMiddleware(h.jwtSecret))
	}
	{
		v1.GET("/menu", h.listMenuItems)
		v1.POST("/menu", h.createMenuItem)
		v1.GET("/menu/:id", h.getMenuItem)
		v1.PUT("/menu/:id", h.updateMenuItem)
		v1.GET("/menu/:id/recipe", h.getRecipe)
		v1.PUT("/menu/:id/recipe", h.setRecipe)

		v1.GET("/inventory", h.listIngredients)
		v1.POST("/inventory", h.createIngredient)
		v1.GET("/inventory/:id", h.getIngredient)
		v1.POST("/inventory/:id/adjust", h.adjustStock)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/active", h.listActiveOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/status", h.transitionOrder)
		v1.POST("/orders/:id/items/:itemID/status", h.transitionOrderItem)

		v1.GET("/kitchen/queue", h.kitchenQueue)

		v1.GET("/events/dead", h.listDeadEvents)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError maps domain errors onto HTTP statuses. Stock shortfalls
// carry their per-ingredient breakdown so the client can tell the guest
// exactly what ran out.
func respondError(c *gin.Context, err error) {
	var (
		validation   *models.ValidationError
		notFound     *models.NotFoundError
		insufficient *models.InsufficientStockError
		transition   *models.InvalidTransitionError
		state        *models.InvalidStateError
		reservation  *models.ReservationNotFoundError
		downstream   *models.DownstreamUnavailableError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": validation.Error(),
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": notFound.Error(),
		})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"success":    false,
			"message":    insufficient.Error(),
			"shortfalls": insufficient.Shortfalls,
		})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": transition.Error(),
		})
	case errors.As(err, &state):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": state.Error(),
		})
	case errors.As(err, &reservation):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": reservation.Error(),
		})
	case errors.As(err, &downstream):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"message": downstream.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "internal error",
		})
	}
}

// listMenuItems handles menu listing
func (h *Handler) listMenuItems(c *gin.Context) {
	filter := models.MenuFilter{
		Category:      c.Query("category"),
		AvailableOnly: c.Query("available") == "true",
	}

	items, err := h.menuService.ListMenuItems(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, items)
}

// getMenuItem handles get menu item by ID
func (h *Handler) getMenuItem(c *gin.Context) {
	item, err := h.menuService.GetMenuItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, item)
}

// createMenuItem handles menu item creation
func (h *Handler) createMenuItem(c *gin.Context) {
	var item models.MenuItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	if err := h.menuService.CreateMenuItem(c.Request.Context(), &item); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, item)
}

// updateMenuItem handles menu item updates
func (h *Handler) updateMenuItem(c *gin.Context) {
	var item models.MenuItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}
	item.ID = c.Param("id")

	if err := h.menuService.UpdateMenuItem(c.Request.Context(), &item); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, item)
}

// getRecipe handles get recipe by menu item ID
func (h *Handler) getRecipe(c *gin.Context) {
	lines, err := h.menuService.GetRecipe(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, lines)
}

// setRecipe handles recipe replacement
func (h *Handler) setRecipe(c *gin.Context) {
	var lines []models.RecipeLine
	if err := c.ShouldBindJSON(&lines); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	if err := h.menuService.SetRecipe(c.Request.Context(), c.Param("id"), lines); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, lines)
}

// listIngredients handles ingredient listing
func (h *Handler) listIngredients(c *gin.Context) {
	ingredients, err := h.menuService.ListIngredients(c.Request.Context(), c.Query("low_stock") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, ingredients)
}

// getIngredient handles get ingredient by ID
func (h *Handler) getIngredient(c *gin.Context) {
	ing, err := h.menuService.GetIngredient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, ing)
}

// createIngredient handles ingredient creation
func (h *Handler) createIngredient(c *gin.Context) {
	var ing models.Ingredient
	if err := c.ShouldBindJSON(&ing); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	if err := h.menuService.CreateIngredient(c.Request.Context(), &ing); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, ing)
}

type adjustStockRequest struct {
	Delta  float64 `json:"delta" binding:"required"`
	Reason string  `json:"reason" binding:"required"`
}

// adjustStock handles direct stock adjustments
func (h *Handler) adjustStock(c *gin.Context) {
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	id := c.Param("id")
	if err := h.menuService.AdjustStock(c.Request.Context(), id, req.Delta, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	ing, err := h.menuService.GetIngredient(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, ing)
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	// A JWT-authenticated waiter overrides whatever the body claims.
	if waiterID, ok := c.Get(ctxWaiterID); ok {
		req.WaiterID = waiterID.(string)
	}
	if waiterName, ok := c.Get(ctxWaiterName); ok {
		req.WaiterName = waiterName.(string)
	}

	order, err := h.orderService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, order)
}

// listOrders handles order listing with filters
func (h *Handler) listOrders(c *gin.Context) {
	filter := models.OrderFilter{
		Status:   models.OrderStatus(c.Query("status")),
		WaiterID: c.Query("waiter_id"),
	}
	if table := c.Query("table_number"); table != "" {
		n, err := strconv.Atoi(table)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "invalid table_number",
			})
			return
		}
		filter.TableNumber = n
	}
	if date := c.Query("date"); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "invalid date, expected YYYY-MM-DD",
			})
			return
		}
		filter.Date = &t
	}

	orders, err := h.orderService.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, orders)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason,omitempty"`
}

// transitionOrder handles order status transitions
func (h *Handler) transitionOrder(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	order, err := h.orderService.Transition(c.Request.Context(), c.Param("id"), models.OrderStatus(req.Status), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// transitionOrderItem handles order item status transitions
func (h *Handler) transitionOrderItem(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	order, err := h.orderService.TransitionItem(c.Request.Context(), c.Param("id"), c.Param("itemID"), models.ItemStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// kitchenQueue handles kitchen queue reads
func (h *Handler) kitchenQueue(c *gin.Context) {
	tickets, err := h.kitchen.Queue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, tickets)
}

// listDeadEvents handles dead-lettered event inspection
func (h *Handler) listDeadEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "invalid limit",
			})
			return
		}
		limit = n
	}

	events, err := h.orderService.ListDeadEvents(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, events)
}

// listActiveOrders handles active order reads
func (h *Handler) listActiveOrders(c *gin.Context) {
	orders, err := h.activeOrders.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, orders)
}
