package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"parcel-dispatch/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CallbackParser turns a raw gateway callback body into a normalized result.
// Implemented in pkg/mpesa.
type CallbackParser func(raw []byte) (*models.CallbackResult, error)

// Handler handles HTTP requests for payments.
type Handler struct {
	svc      ServiceInterface
	parse    CallbackParser
	validate *validator.Validate
}

// NewHandler creates a new payment handler.
func NewHandler(svc ServiceInterface, parse CallbackParser) *Handler {
	return &Handler{
		svc:      svc,
		parse:    parse,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the payment routes. The callback route is public
// because the gateway calls it without our tokens.
func (h *Handler) RegisterRoutes(public, auth, admin *echo.Group) {
	public.POST("/payments/callback", h.Callback)

	auth.POST("/orders/:orderId/payments", h.Initiate)
	auth.GET("/orders/:orderId/payments", h.GetOrderPayment)
	auth.GET("/payments/status/:checkoutId", h.Query)
	auth.POST("/payments/:paymentId/cancel", h.Cancel)

	admin.GET("/payments", h.ListAll)
	admin.POST("/payments/:paymentId/refund", h.Refund)
}

func (h *Handler) Initiate(c echo.Context) error {
	userID := c.Get("userID").(string)
	orderID := c.Param("orderId")

	var req models.InitiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	intent, err := h.svc.Initiate(c.Request().Context(), orderID, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrAlreadyPaid):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order is already paid"})
		case errors.Is(err, models.ErrOrderCancelled):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order is cancelled"})
		case errors.Is(err, models.ErrOrderDelivered):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order is already delivered"})
		case errors.Is(err, models.ErrConflict):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "A payment is already in progress for this order"})
		case errors.Is(err, models.ErrGatewayUnavailable):
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Payment gateway is temporarily unavailable"})
		}
		c.Logger().Error("Handler.Initiate: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to initiate payment"})
	}

	return c.JSON(http.StatusAccepted, intent)
}

// Callback receives the asynchronous gateway result. It always acknowledges
// with a gateway-shaped 200; a non-200 would make the gateway retry a
// payload we already know how to handle.
func (h *Handler) Callback(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Logger().Error("Handler.Callback: read body: ", err)
		return c.JSON(http.StatusOK, callbackAck())
	}

	result, err := h.parse(body)
	if err != nil {
		c.Logger().Error("Handler.Callback: unparseable payload: ", err)
		return c.JSON(http.StatusOK, callbackAck())
	}

	if _, err := h.svc.Reconcile(c.Request().Context(), *result); err != nil {
		if errors.Is(err, models.ErrUnknownPayment) {
			c.Logger().Warnf("Handler.Callback: unknown checkout id %s", result.CheckoutID)
		} else {
			c.Logger().Error("Handler.Callback: ", err)
		}
	}

	return c.JSON(http.StatusOK, callbackAck())
}

func callbackAck() map[string]interface{} {
	return map[string]interface{}{"ResultCode": 0, "ResultDesc": "Accepted"}
}

func (h *Handler) Query(c echo.Context) error {
	checkoutID := c.Param("checkoutId")

	status, err := h.svc.Query(c.Request().Context(), checkoutID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnknownPayment):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "No payment for that checkout id"})
		case errors.Is(err, models.ErrGatewayUnavailable):
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Payment gateway is temporarily unavailable"})
		}
		c.Logger().Error("Handler.Query: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to query payment status"})
	}

	return c.JSON(http.StatusOK, status)
}

func (h *Handler) GetOrderPayment(c echo.Context) error {
	userID := c.Get("userID").(string)
	role := models.Role(c.Get("userRole").(string))
	orderID := c.Param("orderId")

	payment, err := h.svc.GetOrderPayment(c.Request().Context(), orderID, userID, role)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "No payment found for this order"})
		}
		c.Logger().Error("Handler.GetOrderPayment: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve payment"})
	}

	return c.JSON(http.StatusOK, payment)
}

func (h *Handler) Cancel(c echo.Context) error {
	userID := c.Get("userID").(string)
	paymentID := c.Param("paymentId")

	if err := h.svc.Cancel(c.Request().Context(), paymentID, userID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Payment not found"})
		case errors.Is(err, models.ErrConcurrentModification):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Payment has already completed"})
		}
		c.Logger().Error("Handler.Cancel: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to cancel payment"})
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAll(c echo.Context) error {
	page := 1
	limit := 50
	if p := c.QueryParam("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	payments, total, err := h.svc.ListAllPayments(c.Request().Context(), page, limit)
	if err != nil {
		c.Logger().Error("Handler.ListAll: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve payments"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"payments": payments, "total": total})
}

func (h *Handler) Refund(c echo.Context) error {
	paymentID := c.Param("paymentId")

	payment, err := h.svc.Refund(c.Request().Context(), paymentID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Payment not found"})
		case errors.Is(err, models.ErrConcurrentModification):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Only a paid payment can be refunded"})
		}
		c.Logger().Error("Handler.Refund: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to refund payment"})
	}

	return c.JSON(http.StatusOK, payment)
}
