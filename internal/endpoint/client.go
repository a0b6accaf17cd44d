package endpoint

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/domain"
)

// client is a single connected websocket peer. Each client owns a send
// channel drained by its write pump so broadcasts never block on a slow
// peer's socket.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool

	closeOnce sync.Once
}

func (c *client) inRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

// deliver queues a message for the client, dropping it if the send
// buffer is full. The send happens under c.mu so it cannot race the
// channel close on the drop path.
func (c *client) deliver(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

// writePump drains the send channel onto the socket
func (c *client) writePump() {
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// handleClient upgrades an end-client connection and runs its read loop.
// On connect the client is joined to every room that exists at that
// moment; rooms created later do not pick up existing clients.
func (rt *Runtime) handleClient(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{
		id:    uuid.New().String(),
		conn:  conn,
		send:  make(chan []byte, 64),
		rooms: make(map[string]struct{}),
	}

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		_ = conn.Close()
		return
	}
	rt.clients[c.id] = c
	for room := range rt.rooms {
		c.rooms[room] = struct{}{}
	}
	rt.appendLogLocked(fmt.Sprintf("User connected: %s", c.id))
	rt.mu.Unlock()

	rt.recorder.Record(rt.name, domain.EventUserConnected, map[string]string{"userId": c.id})

	go c.writePump()
	rt.readLoop(c)
}

// readLoop consumes inbound frames until the peer disconnects. Every
// inbound text frame counts as a direct message.
func (rt *Runtime) readLoop(c *client) {
	defer rt.dropClient(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				rt.logger.Debug("Client read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		rt.mu.Lock()
		if rt.closed {
			rt.mu.Unlock()
			return
		}
		rt.messageCount++
		rt.appendLogLocked(fmt.Sprintf("Message received from %s: %s", c.id, message))
		rt.mu.Unlock()

		rt.recorder.Record(rt.name, domain.EventMessageSent, map[string]string{"message": string(message)})
	}
}

// dropClient unregisters a client after its read loop ends
func (rt *Runtime) dropClient(c *client) {
	c.close()

	rt.mu.Lock()
	_, registered := rt.clients[c.id]
	if registered {
		delete(rt.clients, c.id)
		rt.appendLogLocked(fmt.Sprintf("User disconnected: %s", c.id))
	}
	closed := rt.closed
	rt.mu.Unlock()

	if registered && !closed {
		rt.recorder.Record(rt.name, domain.EventUserDisconnected, map[string]string{"userId": c.id})
	}
}
