package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/medilink/clinic-queue-backend/internal/station/controllers"
)

func RegisterStationRoutes(e *echo.Echo, sc *controllers.StationController) {
	e.GET("/api/stations", sc.GetStationCatalogHandler)
}
