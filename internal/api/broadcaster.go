package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/locamap/internal/engine"
)

// Stream message types.
const (
	MessageView   = "view"
	MessageNotice = "notice"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	sendQueueLen = 32
)

// Message is one frame on the view stream. Clients drop view frames whose
// version is lower than the latest one they applied.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Broadcaster fans view-model and notice frames out to websocket clients.
// Each client has its own writer goroutine; a client whose queue is full is
// disconnected rather than slowing the others down.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// Subscribe registers conn and starts its writer. initial, if non-nil, is
// queued before any broadcast frame.
func (b *Broadcaster) Subscribe(conn *websocket.Conn, initial *Message) *client {
	c := &client{conn: conn, send: make(chan []byte, sendQueueLen)}
	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			c.send <- data
		} else {
			b.logger.Error("failed to marshal initial frame", "error", err)
		}
	}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go b.writePump(c)
	return c
}

// Unsubscribe removes a client and stops its writer.
func (b *Broadcaster) Unsubscribe(c *client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()
	if ok {
		c.close()
	}
}

// Broadcast sends msg to every client.
func (b *Broadcaster) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal stream message", "type", msg.Type, "error", err)
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("dropping slow websocket client", "remote_addr", c.conn.RemoteAddr().String())
		b.Unsubscribe(c)
	}
}

// Publisher is the part of the engine the broadcaster listens to.
type Publisher interface {
	OnView(func(engine.ViewModel))
	OnNotice(func(engine.Notice))
}

// Attach forwards every published view model and notice to the clients.
func (b *Broadcaster) Attach(p Publisher) {
	p.OnView(func(vm engine.ViewModel) {
		b.Broadcast(Message{Type: MessageView, Data: vm})
	})
	p.OnNotice(func(n engine.Notice) {
		b.Broadcast(Message{Type: MessageNotice, Data: n})
	})
}

// ConnectionCount returns the number of connected clients.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[*client]struct{})
	b.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

func (b *Broadcaster) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				b.logger.Warn("failed to send message to websocket client", "error", err)
				b.Unsubscribe(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				b.Unsubscribe(c)
				return
			}
		}
	}
}
