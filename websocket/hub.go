package websocket

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

const sendBufferSize = 128

// Conn is the slice of a websocket connection the hub needs. The fiber
// contrib *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Event is the wire envelope for every server-to-client push.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// client pairs a connection with its single writer goroutine. The
// underlying websocket supports at most one concurrent writer, so every
// outbound event goes through the send channel and only the write loop
// touches the connection.
type client struct {
	hub    *Hub
	userID uuid.UUID
	conn   Conn
	send   chan Event
	once   sync.Once
	done   chan struct{}
}

func (c *client) start() {
	go c.writeLoop()
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				log.Printf("websocket: error sending %s to client %s: %v", event.Event, c.userID, err)
				c.hub.Unregister(c.userID, c.conn)
				return
			}
		}
	}
}

// enqueue hands the event to the write loop without blocking the caller.
// It reports false once the client is stopped or its buffer is full.
func (c *client) enqueue(event Event) bool {
	select {
	case <-c.done:
		return false
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub is the per-process registry of live connections, keyed by user id. A
// user may hold several connections at once (multi-device); presence means
// at least one of them is alive. Connections register on upgrade and must
// unregister on disconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[Conn]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]map[Conn]*client)}
}

func (h *Hub) Register(userID uuid.UUID, conn Conn) {
	c := &client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan Event, sendBufferSize),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[Conn]*client)
	}
	h.clients[userID][conn] = c
	h.mu.Unlock()
	c.start()
	log.Printf("websocket: client registered: %s", userID)
}

func (h *Hub) Unregister(userID uuid.UUID, conn Conn) {
	h.mu.Lock()
	var c *client
	if conns, ok := h.clients[userID]; ok {
		c = conns[conn]
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
	h.mu.Unlock()
	if c != nil {
		c.stop()
	}
	log.Printf("websocket: client unregistered: %s", userID)
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// EmitToUser delivers the event to every live connection of the user. A
// user with no connection is silently skipped. Delivery never blocks the
// caller: events are queued to each connection's write loop, and a client
// too slow to drain its buffer is dropped.
func (h *Hub) EmitToUser(userID uuid.UUID, event string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for _, c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(Event{Event: event, Data: payload}) {
			log.Printf("websocket: dropping slow client %s for %s", c.userID, event)
			h.Unregister(c.userID, c.conn)
		}
	}
}

// EmitToAll broadcasts the event to every connected user.
func (h *Hub) EmitToAll(event string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, conns := range h.clients {
		for _, c := range conns {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(Event{Event: event, Data: payload}) {
			log.Printf("websocket: dropping slow client %s for %s", c.userID, event)
			h.Unregister(c.userID, c.conn)
		}
	}
}

// SweepStale queues a ping to every connection. Clients with a dead peer
// fail the write and unregister themselves from the write loop; clients
// whose buffer is already full are dropped here. Run on a schedule so a
// missed disconnect cannot leave a stale delivery target behind forever.
// Returns the number dropped at enqueue time.
func (h *Hub) SweepStale() int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, conns := range h.clients {
		for _, c := range conns {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range targets {
		if !c.enqueue(Event{Event: "ping"}) {
			h.Unregister(c.userID, c.conn)
			dropped++
		}
	}
	return dropped
}
