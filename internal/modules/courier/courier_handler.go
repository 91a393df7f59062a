package courier

import (
	"errors"
	"net/http"

	"parcel-dispatch/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for courier self-service.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

// NewHandler creates a new courier handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts courier routes on the courier-role group.
func (h *Handler) RegisterRoutes(courierGroup *echo.Group) {
	courierGroup.GET("/couriers/me", h.GetMyProfile)
	courierGroup.PUT("/couriers/me/location", h.UpdateMyLocation)
}

func (h *Handler) GetMyProfile(c echo.Context) error {
	courierID := c.Get("userID").(string)

	profile, err := h.svc.GetProfile(c.Request().Context(), courierID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Courier profile not found"})
		}
		c.Logger().Error("Handler.GetMyProfile: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve profile"})
	}

	return c.JSON(http.StatusOK, profile)
}

func (h *Handler) UpdateMyLocation(c echo.Context) error {
	courierID := c.Get("userID").(string)

	var req models.CourierLocationUpdate
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	if err := h.svc.UpdateLocation(c.Request().Context(), courierID, req); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Courier profile not found"})
		}
		c.Logger().Error("Handler.UpdateMyLocation: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to update location"})
	}

	return c.NoContent(http.StatusNoContent)
}
