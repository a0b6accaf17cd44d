package endpoint

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// adminConn is an observability-only subscriber that receives log lines
// as they are appended. Nothing it sends is interpreted.
type adminConn struct {
	conn *websocket.Conn
	send chan string

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
}

// notify queues a log line, dropping it if the observer is slow. The send
// happens under a.mu so it cannot race the channel close.
func (a *adminConn) notify(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.send <- line:
	default:
	}
}

func (a *adminConn) close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.send)
		a.mu.Unlock()
		_ = a.conn.Close()
	})
}

func (a *adminConn) writePump() {
	for line := range a.send {
		if err := a.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
}

// handleAdmin upgrades an admin observer connection and streams log
// lines to it until it disconnects.
func (rt *Runtime) handleAdmin(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Error("Failed to upgrade admin connection", zap.Error(err))
		return
	}

	a := &adminConn{
		conn: conn,
		send: make(chan string, 256),
	}

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		_ = conn.Close()
		return
	}
	rt.admins[a] = struct{}{}
	rt.mu.Unlock()

	rt.logger.Debug("Admin observer connected")

	go a.writePump()

	// Drain inbound frames to detect disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	rt.mu.Lock()
	delete(rt.admins, a)
	rt.mu.Unlock()
	a.close()

	rt.logger.Debug("Admin observer disconnected")
}
