package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/types"
)

// Message types pushed to display clients.
const (
	TypeAlertsSnapshot    = "alerts_snapshot"
	TypeAlertCreated      = "alert_created"
	TypeAlertAcknowledged = "alert_acknowledged"
	TypeSecurityLevel     = "security_level"
)

const publishTimeout = time.Second

// Message defines the generic structure for WS communication
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans messages out to every connected display client.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	log        zerolog.Logger
	mu         sync.RWMutex
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Message),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
		log:        log.With().Str("component", "ws-hub").Logger(),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Msg("WebSocket hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.log.Info().Msg("WebSocket hub shutting down")
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Int("clients", total).Msg("WebSocket client connected")
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// slow reader
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues a message for every client. It fails only when ctx ends
// or the hub has stopped.
func (h *Hub) Publish(ctx context.Context, msgType string, payload interface{}) error {
	select {
	case h.broadcast <- Message{Type: msgType, Payload: payload}:
		return nil
	case <-h.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver pushes a newly created alert to display clients.
func (h *Hub) Deliver(ctx context.Context, alert *types.Alert, _ types.Alarm) error {
	return h.Publish(ctx, TypeAlertCreated, alert.Summary())
}

// SecurityLevelChanged tells display clients about a new security level,
// whichever producer changed it.
func (h *Hub) SecurityLevelChanged(_, current types.SecurityLevel) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.Publish(ctx, TypeSecurityLevel, current); err != nil {
		h.log.Debug().Err(err).Stringer("level", current).Msg("Security level not pushed")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
