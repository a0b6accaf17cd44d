// Package endpoint implements the in-memory runtime of a single managed
// socket endpoint: one network listener, its connected clients, its room
// set, a message counter, a bounded log, and an admin observer channel.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrClosed       = errors.New("endpoint closed")
)

// bindAttempts bounds the retry loop for listeners racing a still-closing
// predecessor on the same port during a restart.
const (
	bindAttempts = 5
	bindBackoff  = 100 * time.Millisecond
)

// Recorder receives audit events from the runtime. Recording must never
// block or fail the triggering transition.
type Recorder interface {
	Record(serverName string, eventType domain.EventType, payload any)
}

// Options controls runtime construction.
type Options struct {
	// Host is the bind address for the listener
	Host string
	// LogBuffer caps the in-memory log; 0 means unbounded
	LogBuffer int
}

// Runtime is the live state of one managed endpoint. It is created on
// start and destroyed on stop; rooms and connections are rebuilt from
// scratch on every (re)start.
type Runtime struct {
	name     string
	port     int
	logger   *zap.Logger
	recorder Recorder
	logCap   int

	srv      *http.Server
	upgrader websocket.Upgrader

	mu           sync.RWMutex
	clients      map[string]*client
	rooms        map[string]struct{}
	messageCount int64
	logs         []string
	admins       map[*adminConn]struct{}
	closed       bool

	closeOnce sync.Once
}

// New binds a listener on the given port and starts serving client and
// admin websocket connections. Binding retries briefly so a restart can
// tolerate the previous listener still tearing down.
func New(name string, port int, opts Options, recorder Recorder, logger *zap.Logger) (*Runtime, error) {
	rt := &Runtime{
		name:     name,
		port:     port,
		logger:   logger.Named("endpoint").With(zap.String("server", name), zap.Int("port", port)),
		recorder: recorder,
		logCap:   opts.LogBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
		rooms:   make(map[string]struct{}),
		admins:  make(map[*adminConn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin", rt.handleAdmin)
	mux.HandleFunc("/", rt.handleClient)

	addr := fmt.Sprintf("%s:%d", opts.Host, port)
	ln, err := listenWithRetry(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind endpoint %s on %s: %w", name, addr, err)
	}

	rt.srv = &http.Server{
		Addr:        addr,
		Handler:     mux,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		if err := rt.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			rt.logger.Error("Endpoint listener error", zap.Error(err))
		}
	}()

	rt.logger.Info("Endpoint listening", zap.String("address", addr))
	return rt, nil
}

func listenWithRetry(addr string) (net.Listener, error) {
	var lastErr error
	for i := 0; i < bindAttempts; i++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		time.Sleep(bindBackoff)
	}
	return nil, lastErr
}

// Name returns the server name this runtime belongs to
func (rt *Runtime) Name() string { return rt.name }

// Port returns the bound port
func (rt *Runtime) Port() int { return rt.port }

// AddRoom registers a room name on the runtime. Adding an existing name
// is a no-op. Clients connected after the room exists are auto-joined;
// clients already connected are not.
func (rt *Runtime) AddRoom(room string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.rooms[room] = struct{}{}
}

// HasRoom reports whether a room name is registered
func (rt *Runtime) HasRoom(room string) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	_, ok := rt.rooms[room]
	return ok
}

// SendToRoom broadcasts a message to every client joined to the room and
// increments the message counter.
func (rt *Runtime) SendToRoom(room, message string) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return ErrClosed
	}
	if _, ok := rt.rooms[room]; !ok {
		rt.mu.Unlock()
		return ErrRoomNotFound
	}

	var targets []*client
	for _, c := range rt.clients {
		if c.inRoom(room) {
			targets = append(targets, c)
		}
	}
	rt.messageCount++
	rt.appendLogLocked(fmt.Sprintf("Message sent to room %s: %s", room, message))
	rt.mu.Unlock()

	for _, c := range targets {
		c.deliver([]byte(message))
	}
	return nil
}

// Rooms returns the registered room names
func (rt *Runtime) Rooms() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	rooms := make([]string, 0, len(rt.rooms))
	for room := range rt.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// ConnectedUsers returns the ids of currently connected clients
func (rt *Runtime) ConnectedUsers() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	users := make([]string, 0, len(rt.clients))
	for id := range rt.clients {
		users = append(users, id)
	}
	return users
}

// MessageCount returns the number of messages handled since start
func (rt *Runtime) MessageCount() int64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.messageCount
}

// Logs returns a copy of the in-memory log buffer
func (rt *Runtime) Logs() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	logs := make([]string, len(rt.logs))
	copy(logs, rt.logs)
	return logs
}

// Log appends a line to the runtime log and fans it out to admin observers
func (rt *Runtime) Log(line string) {
	rt.mu.Lock()
	rt.appendLogLocked(line)
	rt.mu.Unlock()
}

// appendLogLocked appends to the bounded log and notifies admin
// observers. Callers must hold rt.mu.
func (rt *Runtime) appendLogLocked(line string) {
	rt.logs = append(rt.logs, line)
	if rt.logCap > 0 && len(rt.logs) > rt.logCap {
		rt.logs = rt.logs[len(rt.logs)-rt.logCap:]
	}
	for a := range rt.admins {
		a.notify(line)
	}
}

// Close shuts the listener and drops all connections. Safe to call more
// than once; later calls are no-ops.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		rt.mu.Lock()
		rt.closed = true
		clients := make([]*client, 0, len(rt.clients))
		for _, c := range rt.clients {
			clients = append(clients, c)
		}
		admins := make([]*adminConn, 0, len(rt.admins))
		for a := range rt.admins {
			admins = append(admins, a)
		}
		rt.mu.Unlock()

		for _, c := range clients {
			c.close()
		}
		for _, a := range admins {
			a.close()
		}

		if err := rt.srv.Close(); err != nil {
			rt.logger.Warn("Endpoint close error", zap.Error(err))
		}
		rt.logger.Info("Endpoint shut down")
	})
}
