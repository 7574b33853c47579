package ws

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Displays and consoles live on the clinic LAN; tighten per
		// deployment if exposed further.
		return true
	},
}

// ServeStationWS upgrades a station console connection. The console
// subscribes as "<station_type>-<station_id>".
func ServeStationWS(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		stationType := models.StationType(c.QueryParam("station_type"))
		if !models.ValidStationType(stationType) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"status":  http.StatusBadRequest,
				"message": "station_type is not recognized",
				"data":    nil,
			})
		}
		stationID, err := strconv.Atoi(c.QueryParam("station_id"))
		if err != nil || stationID < 1 {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"status":  http.StatusBadRequest,
				"message": "station_id must be a positive number",
				"data":    nil,
			})
		}
		return serve(hub, c, models.StationKey(stationType, stationID))
	}
}

// ServeDisplayWS upgrades a public display connection. Displays are
// passive subscribers keyed by station type alone.
func ServeDisplayWS(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		stationType := models.StationType(c.QueryParam("station_type"))
		if !models.ValidStationType(stationType) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"status":  http.StatusBadRequest,
				"message": "station_type is not recognized",
				"data":    nil,
			})
		}
		return serve(hub, c, models.DisplayKey(stationType))
	}
}

func serve(hub *Hub, c echo.Context, key models.SubscriberKey) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(key, conn)
	hub.Register <- client

	go client.writePump()
	go client.readPump(hub)
	return nil
}

// readPump drains the socket until it drops, then deregisters the
// client. A closed presentation surface deregisters itself this way.
func (c *Client) readPump(hub *Hub) {
	defer func() {
		hub.Unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// Subscribers only listen; inbound frames are ignored.
	}
}

func (c *Client) writePump() {
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			break
		}
	}
	c.conn.Close()
}
