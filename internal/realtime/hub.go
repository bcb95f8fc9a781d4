// internal/realtime/hub.go
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
	"github.com/owl29bd/cctv-automation-backend/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

// Inbound and outbound event names.
const (
	EventRegister   = "register"
	EventPing       = "ping"
	EventMessage    = "message"
	EventDisconnect = "disconnect"

	EventConnected  = "connected"
	EventRegistered = "registered"
	EventPong       = "pong"
	EventBroadcast  = "broadcast"
	EventError      = "error"
)

// Frame is one JSON message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Hub owns the websocket connections and delivers notifications through the registry.
type Hub struct {
	registry   *Registry
	upgrader   websocket.Upgrader
	sendBuffer int

	mu          sync.RWMutex
	clients     map[string]*Client
	initialized atomic.Bool
}

type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	mu     sync.Mutex
	send   chan outboundFrame
	closed bool
}

func NewHub(registry *Registry, cfg config.RealtimeConfig) *Hub {
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 256
	}

	h := &Hub{
		registry:   registry,
		sendBuffer: sendBuffer,
		clients:    make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: originChecker(cfg.AllowedOrigins),
	}
	registry.OnEvict(h.evict)
	return h
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Start marks the channel ready and starts the registry idle sweep.
func (h *Hub) Start(ctx context.Context) {
	h.registry.Start(ctx)
	h.initialized.Store(true)
	logrus.Info("Realtime notification channel started")
}

// Stop closes every connection and stops the idle sweep.
func (h *Hub) Stop() {
	h.initialized.Store(false)

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.conn.Close()
	}
	h.registry.Stop()
	logrus.Info("Realtime notification channel stopped")
}

func (h *Hub) Initialized() bool {
	return h.initialized.Load()
}

// ServeWS upgrades the request and runs the session until the socket closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.Initialized() {
		err := errdefs.ErrChannelUninitialized
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(errdefs.HTTPStatus(err))
		json.NewEncoder(w).Encode(errdefs.NewErrorBody(errdefs.KindOf(err), err.Error()))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade websocket")
		return
	}

	client := &Client{
		id:   uuid.New().String(),
		conn: conn,
		hub:  h,
		send: make(chan outboundFrame, h.sendBuffer),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	h.registry.RegisterUser(Session{SocketID: client.id, UserID: PendingUserID})
	metrics.RealtimeSessions.Set(float64(h.registry.Count()))

	logrus.WithFields(logrus.Fields{
		"socket_id": client.id,
		"remote":    r.RemoteAddr,
	}).Info("Realtime client connected")

	client.enqueue(outboundFrame{Event: EventConnected, Data: map[string]string{"sessionId": client.id}})

	go client.writePump()
	go client.readPump()
}

// SendToUser delivers to the user's current session. A user without a
// session is a no-op, not an error.
func (h *Hub) SendToUser(userID string, notification Notification) error {
	if !h.Initialized() {
		return errdefs.ErrChannelUninitialized
	}

	session, ok := h.registry.GetUserByUserID(userID)
	if !ok {
		logrus.WithField("user_id", userID).Warn("No active session for user, notification not delivered")
		return nil
	}

	h.deliver(session.SocketID, outboundFrame{Event: EventMessage, Data: notification})
	return nil
}

// Broadcast delivers to every connected session, registered or not.
func (h *Hub) Broadcast(notification Notification) error {
	if !h.Initialized() {
		return errdefs.ErrChannelUninitialized
	}

	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	frame := outboundFrame{Event: EventBroadcast, Data: notification}
	for _, id := range ids {
		h.deliver(id, frame)
	}
	return nil
}

// deliver queues a frame; a full or closed queue counts as a failed attempt.
func (h *Hub) deliver(socketID string, frame outboundFrame) bool {
	h.mu.RLock()
	client, ok := h.clients[socketID]
	h.mu.RUnlock()

	delivered := ok && client.enqueue(frame)
	metrics.RecordDelivery(frame.Event, delivered)
	if !delivered {
		attempts, evicted := h.registry.IncrementReconnectAttempts(socketID)
		logrus.WithFields(logrus.Fields{
			"socket_id": socketID,
			"event":     frame.Event,
			"attempts":  attempts,
			"evicted":   evicted,
		}).Warn("Failed to deliver realtime frame")
	}
	return delivered
}

func (h *Hub) evict(session Session) {
	h.mu.RLock()
	client, ok := h.clients[session.SocketID]
	h.mu.RUnlock()
	if ok {
		client.conn.Close()
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()

	client.close()
	h.registry.RemoveUser(client.id)
	metrics.RealtimeSessions.Set(float64(h.registry.Count()))

	logrus.WithField("socket_id", client.id).Info("Realtime client disconnected")
}

func (c *Client) enqueue(frame outboundFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
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

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
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

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("socket_id", c.id).Debug("Realtime read failed")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(outboundFrame{Event: EventError, Data: map[string]string{"message": "invalid frame"}})
			continue
		}
		if !c.handle(frame) {
			return
		}
	}
}

// handle processes one inbound frame and reports whether to keep reading.
func (c *Client) handle(frame Frame) bool {
	registry := c.hub.registry

	switch frame.Event {
	case EventRegister:
		userID := parseUserID(frame.Data)
		if userID == "" || userID == PendingUserID {
			c.enqueue(outboundFrame{Event: EventError, Data: map[string]string{"message": "userId is required"}})
			return true
		}
		current, _ := registry.GetUserBySocketID(c.id)
		registry.RemoveUser(c.id)
		registry.RegisterUser(Session{
			SocketID:    c.id,
			UserID:      userID,
			ConnectedAt: current.ConnectedAt,
		})
		logrus.WithFields(logrus.Fields{
			"socket_id": c.id,
			"user_id":   userID,
		}).Info("Realtime client registered")
		c.enqueue(outboundFrame{Event: EventRegistered, Data: map[string]string{"userId": userID}})

	case EventPing:
		registry.UpdateUserActivity(c.id)
		c.enqueue(outboundFrame{Event: EventPong, Data: map[string]time.Time{"timestamp": time.Now().UTC()}})

	case EventMessage:
		registry.UpdateUserActivity(c.id)
		logrus.WithFields(logrus.Fields{
			"socket_id": c.id,
			"size":      len(frame.Data),
		}).Debug("Realtime message received")

	case EventDisconnect:
		return false

	default:
		c.enqueue(outboundFrame{Event: EventError, Data: map[string]string{"message": "unknown event " + frame.Event}})
	}
	return true
}

// parseUserID accepts either a bare JSON string or {"userId": "..."}.
func parseUserID(data json.RawMessage) string {
	var userID string
	if err := json.Unmarshal(data, &userID); err == nil {
		return strings.TrimSpace(userID)
	}
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		return strings.TrimSpace(payload.UserID)
	}
	return ""
}
