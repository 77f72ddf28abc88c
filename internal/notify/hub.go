// Package notify pushes registry events (issuance, anchoring, verification)
// to WebSocket subscribers. Delivery is best-effort: slow or dead clients
// are dropped rather than allowed to back-pressure the publishers.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	clientBuffer   = 64
)

// Hub fans published events out to every connected client. A single run
// loop owns the client set, so registration, teardown, and broadcast never
// race.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	stop       chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

type client struct {
	accountID string
	conn      *websocket.Conn
	send      chan Event
}

// NewHub creates a hub and starts its broadcast loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		stop:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
	go h.run()
	return h
}

// Publish enqueues an event for broadcast. It never blocks; when the hub is
// saturated the event is dropped and logged.
func (h *Hub) Publish(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("event stream saturated, dropping event", zap.String("type", event.Type))
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
// Authentication happens before this is called.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, accountID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	cl := &client{
		accountID: accountID,
		conn:      conn,
		send:      make(chan Event, clientBuffer),
	}
	select {
	case h.register <- cl:
	case <-h.stop:
		conn.Close()
		return nil
	}
	go h.readPump(cl)
	go h.writePump(cl)
	return nil
}

// Close tears down the hub and disconnects every client.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

func (h *Hub) run() {
	for {
		select {
		case cl := <-h.register:
			h.clients[cl] = true
			h.logger.Debug("event subscriber connected", zap.String("account_id", cl.accountID))

		case cl := <-h.unregister:
			if _, ok := h.clients[cl]; ok {
				delete(h.clients, cl)
				close(cl.send)
				h.logger.Debug("event subscriber disconnected", zap.String("account_id", cl.accountID))
			}

		case event := <-h.broadcast:
			for cl := range h.clients {
				select {
				case cl.send <- event:
				default:
					delete(h.clients, cl)
					close(cl.send)
					h.logger.Warn("dropping slow event subscriber", zap.String("account_id", cl.accountID))
				}
			}

		case <-h.stop:
			for cl := range h.clients {
				delete(h.clients, cl)
				close(cl.send)
			}
			return
		}
	}
}

// readPump discards inbound frames; subscribers are read-only. It exists to
// notice closed connections and keep the pong deadline fresh.
func (h *Hub) readPump(cl *client) {
	defer func() {
		select {
		case h.unregister <- cl:
		case <-h.stop:
		}
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("event subscriber read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case event, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
