package api

import (
	"net/http"

	"parcel-dispatch/internal/config"
	"parcel-dispatch/internal/models"
	"parcel-dispatch/internal/modules/courier"
	"parcel-dispatch/internal/modules/order"
	"parcel-dispatch/internal/modules/payment"
	"parcel-dispatch/internal/modules/user"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Handlers bundles the module handlers the router mounts.
type Handlers struct {
	User    *user.Handler
	Order   *order.Handler
	Payment *payment.Handler
	Courier *courier.Handler
}

// NewRouter builds the Echo instance with all middleware and routes mounted.
func NewRouter(cfg *config.Config, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.ClientOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	public := e.Group("/api")

	auth := e.Group("/api")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(cfg.JWTSecret),
	}))
	auth.Use(extractClaims)

	admin := e.Group("/api/admin")
	admin.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(cfg.JWTSecret),
	}))
	admin.Use(extractClaims, requireRole(models.RoleAdmin))

	courierGroup := auth.Group("")
	courierGroup.Use(requireRole(models.RoleCourier))

	h.User.RegisterRoutes(public, auth)
	h.Order.RegisterRoutes(public, auth, admin)
	h.Payment.RegisterRoutes(public, auth, admin)
	h.Courier.RegisterRoutes(courierGroup)

	return e
}

// extractClaims copies the token subject and role into the request context so
// handlers can read them without touching the token.
func extractClaims(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get("user").(*jwt.Token)
		if !ok {
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Missing or invalid token"})
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Missing or invalid token"})
		}

		sub, _ := claims["sub"].(string)
		role, _ := claims["role"].(string)
		if sub == "" || role == "" {
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Missing or invalid token"})
		}

		c.Set("userID", sub)
		c.Set("userRole", role)
		return next(c)
	}
}

func requireRole(role models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if models.Role(c.Get("userRole").(string)) != role {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Insufficient permissions"})
			}
			return next(c)
		}
	}
}
