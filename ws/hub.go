package ws

// The hub owns every websocket connection: station consoles and public
// displays register under their subscriber key, get wired into the
// broadcast layer, and are torn down when their socket drops.

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
	"github.com/medilink/clinic-queue-backend/internal/queue/services"
)

// ErrClientGone is returned from Notify once the socket is closed or
// its send buffer overflows; the broadcaster prunes the subscriber.
var ErrClientGone = errors.New("websocket client gone")

// Client is one websocket connection acting as a broadcast subscriber.
type Client struct {
	key  models.SubscriberKey
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(key models.SubscriberKey, conn *websocket.Conn) *Client {
	return &Client{
		key:  key,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

func (c *Client) Key() models.SubscriberKey {
	return c.key
}

// Notify queues a refresh frame. The frame is a hint only; the client
// re-fetches authoritative queue state over HTTP.
func (c *Client) Notify(n models.Notification) error {
	frame, err := json.Marshal(n)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientGone
	}
	select {
	case c.send <- frame:
		return nil
	default:
		// Slow consumer; let the broadcaster drop it.
		return ErrClientGone
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub manages websocket clients and their broadcast registration.
type Hub struct {
	Register    chan *Client
	Unregister  chan *Client
	broadcaster *services.Broadcaster
}

func NewHub(b *services.Broadcaster) *Hub {
	return &Hub{
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		broadcaster: b,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.broadcaster.Register(client)
			log.Debug().Str("subscriber", string(client.key)).Msg("ws client registered")
		case client := <-h.Unregister:
			h.broadcaster.Unregister(client)
			client.close()
			log.Debug().Str("subscriber", string(client.key)).Msg("ws client unregistered")
		}
	}
}
