package presence

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// DisconnectHandler is called once when a client's read loop ends.
type DisconnectHandler func(*Client)

// Client is one socket connection of an authenticated user.
type Client struct {
	ID      string
	Profile domain.UserProfile
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte

	disconnectHandler DisconnectHandler
}

// NewClient creates a client bound to hub. conn may be nil for in-process
// consumers that read Send directly.
func NewClient(hub *Hub, conn *websocket.Conn, id string, profile domain.UserProfile) *Client {
	return &Client{
		ID:      id,
		Profile: profile,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, hub.config.SendBuffer),
	}
}

// UserID returns the id of the connected user.
func (c *Client) UserID() string {
	return c.Profile.ID
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// ReadPump reads frames until the connection fails and hands each to handler.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldSocketID, c.ID).Msg("websocket error")
			}
			return
		}
		handler(c, message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Reply sends an event to this client only.
func (c *Client) Reply(event string, payload interface{}) error {
	data, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.Hub.SendToClient(c.ID, data)
	return nil
}
