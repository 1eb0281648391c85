package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	sendBufferSize = 16
)

// Hub is a room-per-auction websocket broadcaster implementing Notifier.
// Connections subscribe to a single auction id and receive every event
// published for that auction. A connection that cannot keep up is dropped
// rather than allowed to block the broadcast.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

type client struct {
	ws   *websocket.Conn
	send chan []byte
}

// NewHub returns an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*client]struct{}),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens upstream; the hub only carries public events.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Publish fans the event out to every connection subscribed to its auction.
func (h *Hub) Publish(_ context.Context, e Event) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return err
	}

	// Sends stay under the read lock: unsubscribe closes c.send only while
	// holding the write lock, so no channel can be closed mid-broadcast.
	h.mu.RLock()
	var slow []*client
	for c := range h.rooms[e.AuctionID] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// Slow consumers are dropped so the broadcast never blocks.
	for _, c := range slow {
		h.unsubscribe(e.AuctionID, c)
		h.logger.Warn("dropping slow websocket subscriber",
			slog.String("auction_id", e.AuctionID),
		)
	}
	return nil
}

// ServeWS upgrades the request and subscribes the connection to auctionID
// until the peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, auctionID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{ws: ws, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	if h.rooms[auctionID] == nil {
		h.rooms[auctionID] = make(map[*client]struct{})
	}
	h.rooms[auctionID][c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(auctionID, c)
	go h.readPump(auctionID, c)
	return nil
}

// Subscribers returns the number of connections watching auctionID.
func (h *Hub) Subscribers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

func (h *Hub) unsubscribe(auctionID string, c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[auctionID]; ok {
		if _, ok := room[c]; ok {
			delete(room, c)
			close(c.send)
			if len(room) == 0 {
				delete(h.rooms, auctionID)
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(auctionID string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unsubscribe(auctionID, c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unsubscribe(auctionID, c)
				return
			}
		}
	}
}

func (h *Hub) readPump(auctionID string, c *client) {
	defer h.unsubscribe(auctionID, c)

	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Subscribers are read-only; inbound messages are discarded.
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
