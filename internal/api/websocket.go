package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pos-analytics/internal/auth"
	"pos-analytics/internal/events"
	"pos-analytics/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// pushMessage is the envelope sent to websocket subscribers.
type pushMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Client is one websocket subscriber, scoped to a business.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	businessID string
}

// Hub fans live metric events out to the connected dashboards of each
// business. Clients only ever receive events for their own tenant.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	log        *logging.Logger
}

// NewHub creates the hub and subscribes it to the push-worthy events.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logging.WithComponent("websocket"),
	}

	bus.Subscribe(events.MetricsUpdate, func(evt events.Event) {
		h.broadcast(evt.BusinessID, "analytics.metrics.update", evt.Payload)
	})
	bus.Subscribe(events.EODCompleted, func(evt events.Event) {
		h.broadcast(evt.BusinessID, "analytics.dashboard.refresh", gin.H{
			"business_id":      evt.BusinessID,
			"refresh_required": true,
		})
	})
	bus.Subscribe(events.CacheInvalidated, func(evt events.Event) {
		h.broadcast(evt.BusinessID, "analytics.dashboard.refresh", gin.H{
			"business_id":      evt.BusinessID,
			"refresh_required": true,
		})
	})
	return h
}

// Run processes client registration until the context ends.
func (h *Hub) Run(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case client := <-h.register:
				h.mu.Lock()
				if h.clients[client.businessID] == nil {
					h.clients[client.businessID] = make(map[*Client]bool)
				}
				h.clients[client.businessID][client] = true
				h.mu.Unlock()
				h.log.Debug("websocket client connected", "business_id", client.businessID)
			case client := <-h.unregister:
				h.mu.Lock()
				if set, ok := h.clients[client.businessID]; ok {
					if set[client] {
						delete(set, client)
						close(client.send)
					}
					if len(set) == 0 {
						delete(h.clients, client.businessID)
					}
				}
				h.mu.Unlock()
			}
		}
	}()
}

// broadcast sends one event to every client of a business. A client with
// a full send buffer is dropped rather than blocking the fanout.
func (h *Hub) broadcast(businessID, msgType string, payload interface{}) {
	data, err := json.Marshal(pushMessage{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[businessID] {
		select {
		case client.send <- data:
		default:
			h.log.Warn("dropping slow websocket client", "business_id", businessID)
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// HandleConnection upgrades the request to a websocket. The tenant comes
// from a token query parameter, or the X-Business-ID header when auth is
// disabled.
func (h *Hub) HandleConnection(jwtManager *auth.JWTManager, authEnabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var businessID string
		if authEnabled {
			claims, err := jwtManager.Validate(c.Query("token"))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   true,
					"message": "invalid or missing token",
				})
				return
			}
			businessID = claims.BusinessID
		} else {
			businessID = c.GetHeader("X-Business-ID")
			if businessID == "" {
				businessID = c.Query("businessId")
			}
			if businessID == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   true,
					"message": "business id required",
				})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := &Client{
			hub:        h,
			conn:       conn,
			send:       make(chan []byte, 64),
			businessID: businessID,
		}
		h.register <- client

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
