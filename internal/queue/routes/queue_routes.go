package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/medilink/clinic-queue-backend/internal/common/middlewares"
	"github.com/medilink/clinic-queue-backend/internal/queue/controllers"
	"github.com/medilink/clinic-queue-backend/ws"
)

// RegisterQueueRoutes wires the queue command/query endpoints and the
// websocket subscription surface. Reads and displays are public;
// commands require an authenticated operator.
func RegisterQueueRoutes(e *echo.Echo, qc *controllers.QueueController, hub *ws.Hub) {
	g := e.Group("/api/queue")
	g.GET("", qc.GetQueueDataHandler)

	cmd := g.Group("", middlewares.JWTMiddleware)
	cmd.POST("/call-next", qc.CallNextHandler)
	cmd.POST("/skip", qc.SkipPatientHandler)
	cmd.POST("/recall", qc.RecallPatientHandler)
	cmd.POST("/force-call", qc.ForceCallHandler)
	cmd.POST("/complete", qc.CompletePatientHandler)
	cmd.POST("/push", qc.PushToStationHandler)
	cmd.POST("/intake", qc.IntakeHandler, middlewares.RequireRole("registration", "admin"))

	// Notification frames are refresh hints without patient data, so
	// the subscription surface stays open like the display views.
	e.GET("/ws/station", ws.ServeStationWS(hub))
	e.GET("/ws/display", ws.ServeDisplayWS(hub))
}
