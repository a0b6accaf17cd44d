package endpoint

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/domain"
)

type recordedEvent struct {
	serverName string
	eventType  domain.EventType
}

type stubRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *stubRecorder) Record(serverName string, eventType domain.EventType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{serverName, eventType})
}

func (r *stubRecorder) count(eventType domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newTestRuntime(t *testing.T, recorder Recorder) *Runtime {
	t.Helper()
	rt, err := New("alpha", freePort(t), Options{Host: "127.0.0.1", LogBuffer: 100}, recorder, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func dialClient(t *testing.T, rt *Runtime, path string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d%s", rt.Port(), path)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRuntime_ClientConnectAndDisconnect(t *testing.T) {
	recorder := &stubRecorder{}
	rt := newTestRuntime(t, recorder)

	conn := dialClient(t, rt, "/")
	waitFor(t, func() bool { return len(rt.ConnectedUsers()) == 1 }, "client never registered")
	waitFor(t, func() bool { return recorder.count(domain.EventUserConnected) == 1 }, "connect event never recorded")

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return len(rt.ConnectedUsers()) == 0 }, "client never unregistered")
	waitFor(t, func() bool { return recorder.count(domain.EventUserDisconnected) == 1 }, "disconnect event never recorded")

	logs := rt.Logs()
	require.Len(t, logs, 2)
	assert.Contains(t, logs[0], "User connected")
	assert.Contains(t, logs[1], "User disconnected")
}

func TestRuntime_InboundMessageCounts(t *testing.T) {
	recorder := &stubRecorder{}
	rt := newTestRuntime(t, recorder)

	conn := dialClient(t, rt, "/")
	waitFor(t, func() bool { return len(rt.ConnectedUsers()) == 1 }, "client never registered")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	waitFor(t, func() bool { return rt.MessageCount() == 1 }, "message never counted")
	waitFor(t, func() bool { return recorder.count(domain.EventMessageSent) == 1 }, "message event never recorded")
}

func TestRuntime_RoomBroadcast(t *testing.T) {
	recorder := &stubRecorder{}
	rt := newTestRuntime(t, recorder)
	rt.AddRoom("lobby")

	first := dialClient(t, rt, "/")
	second := dialClient(t, rt, "/")
	waitFor(t, func() bool { return len(rt.ConnectedUsers()) == 2 }, "clients never registered")

	require.NoError(t, rt.SendToRoom("lobby", "hi"))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, message, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "hi", string(message))
	}

	assert.Equal(t, int64(1), rt.MessageCount())
}

func TestRuntime_BroadcastToClosedClientIsDropped(t *testing.T) {
	rt := newTestRuntime(t, &stubRecorder{})
	rt.AddRoom("lobby")

	dialClient(t, rt, "/")
	waitFor(t, func() bool { return len(rt.ConnectedUsers()) == 1 }, "client never registered")

	rt.mu.RLock()
	var c *client
	for _, registered := range rt.clients {
		c = registered
	}
	rt.mu.RUnlock()

	// Close the peer, then pin it back into the map under a synthetic id.
	// This forces the window where SendToRoom snapshots the client list
	// before the read loop has dropped the closed entry.
	c.close()
	rt.mu.Lock()
	rt.clients["stale"] = c
	rt.mu.Unlock()

	require.NoError(t, rt.SendToRoom("lobby", "late"))
	assert.Equal(t, int64(1), rt.MessageCount())

	rt.mu.Lock()
	delete(rt.clients, "stale")
	rt.mu.Unlock()
}

func TestRuntime_LogAfterObserverCloseIsDropped(t *testing.T) {
	rt := newTestRuntime(t, &stubRecorder{})

	dialClient(t, rt, "/admin")
	waitFor(t, func() bool {
		rt.mu.RLock()
		defer rt.mu.RUnlock()
		return len(rt.admins) == 1
	}, "admin observer never registered")

	rt.mu.RLock()
	var a *adminConn
	for registered := range rt.admins {
		a = registered
	}
	rt.mu.RUnlock()

	// Same window as the client path: the observer closed but the log
	// fan-out still sees it registered
	a.close()
	rt.mu.Lock()
	rt.admins[a] = struct{}{}
	rt.mu.Unlock()

	rt.Log("after close")

	rt.mu.Lock()
	delete(rt.admins, a)
	rt.mu.Unlock()
}

func TestRuntime_SendToMissingRoom(t *testing.T) {
	rt := newTestRuntime(t, &stubRecorder{})

	err := rt.SendToRoom("nowhere", "hi")
	require.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, int64(0), rt.MessageCount())
}

func TestRuntime_LateRoomDoesNotJoinExistingClients(t *testing.T) {
	rt := newTestRuntime(t, &stubRecorder{})

	early := dialClient(t, rt, "/")
	waitFor(t, func() bool { return len(rt.ConnectedUsers()) == 1 }, "client never registered")

	rt.AddRoom("lobby")
	late := dialClient(t, rt, "/")
	waitFor(t, func() bool { return len(rt.ConnectedUsers()) == 2 }, "second client never registered")

	require.NoError(t, rt.SendToRoom("lobby", "hi"))

	require.NoError(t, late.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, message, err := late.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(message))

	require.NoError(t, early.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = early.ReadMessage()
	assert.Error(t, err, "client connected before the room existed should not receive the broadcast")
}

func TestRuntime_AdminObserverReceivesLogs(t *testing.T) {
	rt := newTestRuntime(t, &stubRecorder{})

	admin := dialClient(t, rt, "/admin")
	// The observer registers after the upgrade response, give it a moment
	waitFor(t, func() bool {
		rt.mu.RLock()
		defer rt.mu.RUnlock()
		return len(rt.admins) == 1
	}, "admin observer never registered")

	rt.Log("Room created: lobby")

	require.NoError(t, admin.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, line, err := admin.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Room created: lobby", string(line))
}

func TestRuntime_LogBufferBounded(t *testing.T) {
	rt, err := New("alpha", freePort(t), Options{Host: "127.0.0.1", LogBuffer: 5}, &stubRecorder{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	for i := 0; i < 10; i++ {
		rt.Log(fmt.Sprintf("line %d", i))
	}

	logs := rt.Logs()
	require.Len(t, logs, 5)
	assert.Equal(t, "line 5", logs[0])
	assert.Equal(t, "line 9", logs[4])
}

func TestRuntime_AddRoomIdempotent(t *testing.T) {
	rt := newTestRuntime(t, &stubRecorder{})

	rt.AddRoom("lobby")
	rt.AddRoom("lobby")

	assert.Equal(t, []string{"lobby"}, rt.Rooms())
}
