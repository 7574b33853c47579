package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/medilink/clinic-queue-backend/internal/auth/controllers"
)

func RegisterAuthRoutes(e *echo.Echo, ac *controllers.AuthController) {
	e.POST("/api/auth/login", ac.LoginHandler)
}
