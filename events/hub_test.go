package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastCycle(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "ops", map[string]string{"state": "idle"})
	}))
	defer srv.Close()

	conn := dial(t, srv)

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, EventHello, hello.Event)
	assert.Equal(t, map[string]interface{}{"state": "idle"}, hello.Data)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastCycle(map[string]int{"found": 3, "applied": 2})

	var msg Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventCycleFinished, msg.Event)
	assert.Equal(t, map[string]interface{}{"found": float64(3), "applied": float64(2)}, msg.Data)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "ops", nil)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)

	assert.NotPanics(t, func() { hub.BroadcastCycle("nobody listening") })
}

// A client whose queue is full is dropped and never blocks Broadcast.
func TestHub_DropsClientThatStoppedReading(t *testing.T) {
	hub := NewHub()
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	defer srv.Close()

	dial(t, srv)
	conn := <-serverConns
	t.Cleanup(func() { conn.Close() })

	// A client with no writer behind its queue behaves like a stalled one.
	stalled := &client{conn: conn, subject: "stalled", send: make(chan []byte, 1)}
	stalled.send <- []byte("backlog")
	hub.mutex.Lock()
	hub.clients[conn] = stalled
	hub.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		hub.BroadcastCycle(map[string]int{"found": 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a stalled client")
	}
	assert.Zero(t, hub.Clients())

	_, open := <-stalled.send
	assert.True(t, open, "queued backlog is still readable")
	_, open = <-stalled.send
	assert.False(t, open, "queue is closed after the drop")
}
