package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Display clients only send control frames.
	maxInboundBytes = 512
	sendBuffer      = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Displays are served from other origins on the home network.
	CheckOrigin: func(*http.Request) bool { return true },
}

// SnapshotFunc builds the first message a display receives.
type SnapshotFunc func() *Message

// client is one connected display.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
	log  zerolog.Logger
}

func (c *client) writeDeadline() {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
}

// writeLoop sends first, when non-nil, then everything the hub queues,
// pinging between messages.
func (c *client) writeLoop(first *Message) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if first != nil {
		c.writeDeadline()
		if err := c.conn.WriteJSON(first); err != nil {
			c.log.Debug().Err(err).Msg("Initial snapshot not delivered")
			return
		}
	}

	for {
		select {
		case msg, ok := <-c.send:
			c.writeDeadline()
			if !ok {
				// hub dropped us
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug().Err(err).Str("type", msg.Type).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			c.writeDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames so pongs and close frames are handled,
// and unregisters the client when the connection ends.
func (c *client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeWs upgrades the request and registers the display with hub. The
// snapshot is taken only after registration, so an alert broadcast in
// between shows up in the snapshot, as a queued message, or both.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, log zerolog.Logger, snapshot SnapshotFunc) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := &client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
		log:  log.With().Str("remote", r.RemoteAddr).Logger(),
	}

	select {
	case hub.register <- c:
	case <-hub.done:
		conn.Close()
		return
	}

	var first *Message
	if snapshot != nil {
		first = snapshot()
	}
	go c.writeLoop(first)
	go c.readLoop()
}
