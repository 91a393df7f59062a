package order

import (
	"errors"
	"net/http"
	"strconv"

	"parcel-dispatch/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for orders.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate // For request body validation
}

// NewHandler creates a new order handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the order routes. public carries no authentication,
// auth requires a valid token, admin additionally requires the admin role.
func (h *Handler) RegisterRoutes(public, auth, admin *echo.Group) {
	public.POST("/quotes", h.GetQuote)
	public.GET("/track/:code", h.TrackByCode)

	auth.POST("/orders", h.CreateOrder)
	auth.GET("/orders", h.ListMyOrders)
	auth.GET("/orders/:orderId", h.GetOrder)
	auth.PATCH("/orders/:orderId/status", h.UpdateStatus)
	auth.PATCH("/orders/:orderId/destination", h.ChangeDestination)
	auth.POST("/orders/:orderId/tracking", h.ReportTracking)
	auth.GET("/orders/:orderId/tracking", h.GetTracking)

	admin.GET("/orders", h.ListAllOrders)
	admin.POST("/orders/:orderId/assign", h.AssignCourier)
	admin.POST("/orders/:orderId/override", h.OverrideStatus)
}

func (h *Handler) GetQuote(c echo.Context) error {
	var req models.QuoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	quote, err := h.svc.GetQuote(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrPackageTooLarge):
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		case errors.Is(err, models.ErrProviderUnavailable):
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Distance lookup is temporarily unavailable"})
		}
		c.Logger().Error("Handler.GetQuote: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to compute quote"})
	}

	return c.JSON(http.StatusOK, quote)
}

func (h *Handler) CreateOrder(c echo.Context) error {
	userID := c.Get("userID").(string)

	var req models.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.CreateOrder(c.Request().Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrPackageTooLarge):
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		case errors.Is(err, models.ErrProviderUnavailable):
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Distance lookup is temporarily unavailable"})
		}
		c.Logger().Error("Handler.CreateOrder: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to create order"})
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *Handler) ListMyOrders(c echo.Context) error {
	userID := c.Get("userID").(string)
	role := models.Role(c.Get("userRole").(string))
	page, limit := paginationParams(c)

	var (
		orders []*models.Order
		total  int
		err    error
	)
	if role == models.RoleCourier {
		orders, total, err = h.svc.ListCourierOrders(c.Request().Context(), userID, page, limit)
	} else {
		orders, total, err = h.svc.ListCustomerOrders(c.Request().Context(), userID, page, limit)
	}
	if err != nil {
		c.Logger().Error("Handler.ListMyOrders: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve orders"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "total": total})
}

func (h *Handler) GetOrder(c echo.Context) error {
	userID := c.Get("userID").(string)
	role := models.Role(c.Get("userRole").(string))
	orderID := c.Param("orderId")

	order, err := h.svc.GetOrder(c.Request().Context(), orderID, userID, role)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		}
		c.Logger().Error("Handler.GetOrder: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve order"})
	}

	return c.JSON(http.StatusOK, order)
}

func (h *Handler) TrackByCode(c echo.Context) error {
	code := c.Param("code")

	order, entries, err := h.svc.TrackByCode(c.Request().Context(), code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Tracking code not found"})
		}
		c.Logger().Error("Handler.TrackByCode: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to look up tracking code"})
	}

	// Public view: just the delivery progress, no customer details.
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tracking_code": order.TrackingCode,
		"status":        order.Status,
		"eta_minutes":   order.EtaMinutes,
		"history":       entries,
	})
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	userID := c.Get("userID").(string)
	role := models.Role(c.Get("userRole").(string))
	orderID := c.Param("orderId")

	var req models.StatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.UpdateStatus(c.Request().Context(), orderID, userID, role, req)
	if err != nil {
		var te *models.TransitionError
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.As(err, &te):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: te.Error()})
		case errors.Is(err, models.ErrForbidden):
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Your role cannot perform this transition"})
		case errors.Is(err, models.ErrPreconditionFailed):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order has no courier assigned"})
		case errors.Is(err, models.ErrConcurrentModification):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order was updated concurrently, please retry"})
		}
		c.Logger().Error("Handler.UpdateStatus: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to update order status"})
	}

	return c.JSON(http.StatusOK, order)
}

func (h *Handler) ChangeDestination(c echo.Context) error {
	userID := c.Get("userID").(string)
	orderID := c.Param("orderId")

	var req models.ChangeDestinationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.ChangeDestination(c.Request().Context(), orderID, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrDestinationLocked):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Destination can only be changed before pickup is arranged"})
		case errors.Is(err, models.ErrAlreadyPaid):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Destination cannot be changed after the order is paid"})
		case errors.Is(err, models.ErrConflict):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "A payment is in progress; cancel it before changing the destination"})
		case errors.Is(err, models.ErrProviderUnavailable):
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Distance lookup is temporarily unavailable"})
		}
		c.Logger().Error("Handler.ChangeDestination: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to change destination"})
	}

	return c.JSON(http.StatusOK, order)
}

func (h *Handler) ReportTracking(c echo.Context) error {
	userID := c.Get("userID").(string)
	orderID := c.Param("orderId")

	var req models.TrackingReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	if err := h.svc.ReportTracking(c.Request().Context(), orderID, userID, req); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrForbidden):
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Only the assigned courier can report tracking"})
		}
		c.Logger().Error("Handler.ReportTracking: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to record tracking entry"})
	}

	return c.NoContent(http.StatusCreated)
}

func (h *Handler) GetTracking(c echo.Context) error {
	userID := c.Get("userID").(string)
	role := models.Role(c.Get("userRole").(string))
	orderID := c.Param("orderId")

	entries, err := h.svc.GetTracking(c.Request().Context(), orderID, userID, role)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		}
		c.Logger().Error("Handler.GetTracking: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve tracking history"})
	}

	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListAllOrders(c echo.Context) error {
	// Role check is done in middleware
	page, limit := paginationParams(c)

	orders, total, err := h.svc.ListAllOrders(c.Request().Context(), page, limit)
	if err != nil {
		c.Logger().Error("Handler.ListAllOrders: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve orders"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "total": total})
}

func (h *Handler) AssignCourier(c echo.Context) error {
	orderID := c.Param("orderId")

	var req models.AssignCourierRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}

	order, err := h.svc.AssignCourier(c.Request().Context(), orderID, req)
	if err != nil {
		var te *models.TransitionError
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.As(err, &te):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: te.Error()})
		case errors.Is(err, models.ErrPaymentRequired):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order must be paid before assignment"})
		case errors.Is(err, models.ErrNoCourierAvailable):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "No courier is available near the pickup point"})
		case errors.Is(err, models.ErrConcurrentModification):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order was updated concurrently, please retry"})
		}
		c.Logger().Error("Handler.AssignCourier: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to assign courier"})
	}

	return c.JSON(http.StatusOK, order)
}

func (h *Handler) OverrideStatus(c echo.Context) error {
	adminID := c.Get("userID").(string)
	orderID := c.Param("orderId")

	var req models.AdminOverrideRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.AdminOverrideStatus(c.Request().Context(), orderID, adminID, req)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		}
		c.Logger().Error("Handler.OverrideStatus: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to override order status"})
	}

	return c.JSON(http.StatusOK, order)
}

func paginationParams(c echo.Context) (int, int) {
	page := 1
	limit := 20
	if pageStr := c.QueryParam("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	return page, limit
}
