package presence

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

const (
	defaultSendBuffer     = 256
	defaultPingInterval   = 30 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
)

// outbound is a frame queued for delivery.
type outbound struct {
	roomID  string // room target; empty with userID empty means every client
	userID  string
	exclude string
	data    []byte
	clear   bool
}

// Hub tracks socket connections and delivers frames to them. A single Run
// loop drains the delivery queue so every socket sees frames in queue order.
type Hub struct {
	clients map[string]*Client
	rooms   map[string]map[string]*Client // roomID -> clientID -> client
	users   map[string]map[string]*Client // userID -> clientID -> client

	unregister chan *Client
	queue      chan outbound
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// NewHub creates a new Hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		users:      make(map[string]map[string]*Client),
		unregister: make(chan *Client, 64),
		queue:      make(chan outbound, 1024),
		config:     cfg,
	}
}

// Run delivers queued frames until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.queue:
			if msg.clear {
				h.clearRoom(msg.roomID)
				continue
			}
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[string]*Client
	switch {
	case msg.roomID != "":
		targets = h.rooms[msg.roomID]
	case msg.userID != "":
		targets = h.users[msg.userID]
	default:
		targets = h.clients
	}
	for id, c := range targets {
		if id == msg.exclude {
			continue
		}
		h.offer(c, msg.data)
	}
}

// offer must be called with h.mu held.
func (h *Hub) offer(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		l := log.L()
		l.Warn().Str(log.FieldSocketID, c.ID).Msg("send buffer full, dropping client")
		select {
		case h.unregister <- c:
		default:
			go func() { h.unregister <- c }()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID] = c
	byUser := h.users[c.UserID()]
	if byUser == nil {
		byUser = make(map[string]*Client)
		h.users[c.UserID()] = byUser
	}
	byUser[c.ID] = c
	l := log.L()
	l.Debug().Str(log.FieldSocketID, c.ID).Str(log.FieldUserID, c.UserID()).Msg("client registered")
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.remove(c)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	for roomID, roomClients := range h.rooms {
		delete(roomClients, c.ID)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if byUser := h.users[c.UserID()]; byUser != nil {
		delete(byUser, c.ID)
		if len(byUser) == 0 {
			delete(h.users, c.UserID())
		}
	}
	delete(h.clients, c.ID)
	close(c.Send)
	l := log.L()
	l.Debug().Str(log.FieldSocketID, c.ID).Msg("client unregistered")
}

// Client returns a registered client by id.
func (h *Hub) Client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// JoinRoom subscribes a registered client to a room.
func (h *Hub) JoinRoom(clientID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok {
		return false
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID] = c
	return true
}

// LeaveRoom unsubscribes a client from a room.
func (h *Hub) LeaveRoom(clientID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if roomClients, ok := h.rooms[roomID]; ok {
		delete(roomClients, clientID)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// ClearRoom unsubscribes every client of a room once the frames queued
// before it are delivered.
func (h *Hub) ClearRoom(roomID string) {
	h.queue <- outbound{roomID: roomID, clear: true}
}

func (h *Hub) clearRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, roomID)
}

// RoomSize returns the number of sockets subscribed to a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// UserConnected reports whether a user has at least one registered socket.
func (h *Hub) UserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// BroadcastToRoom queues a frame for every socket of a room except exclude.
func (h *Hub) BroadcastToRoom(roomID string, data []byte, exclude string) {
	h.queue <- outbound{roomID: roomID, exclude: exclude, data: data}
}

// BroadcastAll queues a frame for every connected socket.
func (h *Hub) BroadcastAll(data []byte) {
	h.queue <- outbound{data: data}
}

// SendToUser queues a frame for every socket of a user.
func (h *Hub) SendToUser(userID string, data []byte) {
	if userID == "" {
		return
	}
	h.queue <- outbound{userID: userID, data: data}
}

// SendToClient delivers a frame to one socket directly.
func (h *Hub) SendToClient(clientID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[clientID]; ok {
		h.offer(c, data)
	}
}
