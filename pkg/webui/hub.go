package webui

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single WebSocket write.
const writeWait = 10 * time.Second

// sendBuffer is the per-client queue depth; a slow client drops snapshots
// rather than stalling the broadcast.
const sendBuffer = 8

// The setup page is reached through the captive redirect under arbitrary
// hostnames, so origin checking cannot work here.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// hub tracks connected WebSocket clients and fans status snapshots out to
// them. Queueing and closing a client's send channel both happen under the
// hub lock, so a send can never race the close.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan StatusData
}

func newHub() *hub {
	return &hub{
		clients: make(map[*wsClient]bool),
	}
}

// handleWS upgrades the connection and serves status pushes until the
// client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := s.hub.add(conn)
	go client.writePump()

	// Every client gets the current state right away.
	s.hub.queueTo(client, s.statusData())

	// Read loop: inbound payloads are ignored, but reading is what detects
	// the disconnect.
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(client)
}

func (h *hub) add(conn *websocket.Conn) *wsClient {
	client := &wsClient{
		conn: conn,
		send: make(chan StatusData, sendBuffer),
	}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	return client
}

// remove unregisters the client and closes its send queue, ending the
// write pump. Safe to call more than once per client.
func (h *hub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
}

// broadcast queues a snapshot for every client.
func (h *hub) broadcast(data StatusData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// queueTo queues a snapshot for one client, if it is still registered.
func (h *hub) queueTo(client *wsClient, data StatusData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// closeAll disconnects every client.
func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.remove(client)
	}
}

// writePump drains the send queue into the connection. It exits when the
// queue closes or a write fails, closing the connection either way.
func (c *wsClient) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(data); err != nil {
			return
		}
	}
}
