package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeremiapane/retail-sync/utils"
)

// Event types
const (
	EventCycleFinished = "sync_cycle"
	EventHello         = "hello"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many events a client may lag behind before it is
	// dropped.
	sendBuffer = 16
)

type client struct {
	conn    *websocket.Conn
	subject string
	send    chan []byte
}

// Hub keeps the connected operator dashboards and pushes sync events to
// them. Each client has its own writer, so a slow dashboard never blocks
// Broadcast.
type Hub struct {
	clients  map[*websocket.Conn]*client
	mutex    sync.Mutex
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Register adds conn to the broadcast set and starts its writer.
func (h *Hub) Register(conn *websocket.Conn, subject string) {
	c := &client{conn: conn, subject: subject, send: make(chan []byte, sendBuffer)}

	h.mutex.Lock()
	h.clients[conn] = c
	h.mutex.Unlock()

	go c.writePump()
}

// Unregister removes conn and closes it.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if c, ok := h.clients[conn]; ok {
		h.drop(c)
	}
	conn.Close()
}

// drop must be called with the mutex held.
func (h *Hub) drop(c *client) {
	delete(h.clients, c.conn)
	close(c.send)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// BroadcastCycle pushes a finished cycle report.
func (h *Hub) BroadcastCycle(report interface{}) {
	h.Broadcast(Message{Event: EventCycleFinished, Data: report})
}

// Broadcast queues msg for every client without waiting on the network.
// Clients whose queue is full are dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.Errorf("Error marshaling %s event: %v", msg.Event, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			utils.InfoLogger.WithField("subject", c.subject).Warn("Dropping websocket client that stopped reading")
			h.drop(c)
		}
	}
}

// writePump writes queued events until the queue is closed or a write
// fails. Closing the connection ends the read loop in Serve.
func (c *client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			utils.InfoLogger.WithField("subject", c.subject).Warnf("Websocket write failed: %v", err)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Serve upgrades the request, registers the connection and blocks until the
// client goes away. Incoming messages are ignored.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, subject string, hello interface{}) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	if hello != nil {
		data, err := json.Marshal(Message{Event: EventHello, Data: hello})
		if err == nil {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}

	h.Register(conn, subject)
	defer h.Unregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
