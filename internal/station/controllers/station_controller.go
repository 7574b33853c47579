package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medilink/clinic-queue-backend/internal/station/services"
)

type StationController struct {
	StationService *services.StationService
}

func NewStationController(service *services.StationService) *StationController {
	return &StationController{StationService: service}
}

// GetStationCatalogHandler returns the configured stations. Displays
// use it to find their station number; the queue service uses the same
// catalog for push target checks.
func (sc *StationController) GetStationCatalogHandler(c echo.Context) error {
	catalog, err := sc.StationService.GetStationCatalog(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status":  http.StatusServiceUnavailable,
			"message": err.Error(),
			"data":    nil,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  http.StatusOK,
		"message": "station catalog retrieved",
		"data":    catalog,
	})
}
