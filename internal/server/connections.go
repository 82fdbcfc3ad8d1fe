package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBufferSize = 64
	writeTimeout   = 10 * time.Second
)

// Sender delivers server messages to a connection without blocking the caller.
type Sender interface {
	Send(connectionID string, msg ServerMessage)
	Kick(connectionID string, msg ServerMessage)
}

// Client is one websocket connection. Everything written to the socket goes
// through send so that a single goroutine owns writes.
type Client struct {
	ID     string
	conn   *websocket.Conn
	send   chan ServerMessage
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

type ConnectionManager struct {
	clients map[string]*Client // connectionID -> client
	log     zerolog.Logger
	mu      sync.RWMutex
}

func NewConnectionManager(log zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// AddConnection registers a socket and starts its writer. The writer stops
// when ctx ends or the connection is removed.
func (cm *ConnectionManager) AddConnection(ctx context.Context, id string, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		ID:     id,
		conn:   conn,
		send:   make(chan ServerMessage, sendBufferSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	cm.mu.Lock()
	cm.clients[id] = c
	cm.mu.Unlock()

	go cm.writeLoop(ctx, c)
	return c
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	c, ok := cm.clients[id]
	delete(cm.clients, id)
	cm.mu.Unlock()

	if ok {
		c.close()
	}
}

func (cm *ConnectionManager) GetConnection(id string) *Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.clients[id]
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// Send queues msg for the connection. A client that cannot keep up with its
// buffer is dropped rather than stalling the room that is broadcasting.
func (cm *ConnectionManager) Send(id string, msg ServerMessage) {
	c := cm.GetConnection(id)
	if c == nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		cm.log.Warn().Str("conn", id).Str("type", msg.Type).Msg("Send buffer full, closing connection")
		c.cancel()
	}
}

// Kick queues a final message and closes the socket once it is written.
func (cm *ConnectionManager) Kick(id string, msg ServerMessage) {
	c := cm.GetConnection(id)
	if c == nil {
		return
	}
	select {
	case <-c.done:
		return
	case c.send <- msg:
	default:
	}
	c.close()
}

// CloseAll sends msg to every client and closes it. Used on shutdown.
func (cm *ConnectionManager) CloseAll(msg ServerMessage) {
	cm.mu.RLock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		clients = append(clients, c)
	}
	cm.mu.RUnlock()

	for _, c := range clients {
		cm.Kick(c.ID, msg)
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (cm *ConnectionManager) writeLoop(ctx context.Context, c *Client) {
	defer func() {
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			cm.flush(ctx, c)
			return
		case msg := <-c.send:
			if err := cm.write(ctx, c, msg); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still buffered once the client is closing.
func (cm *ConnectionManager) flush(ctx context.Context, c *Client) {
	for {
		select {
		case msg := <-c.send:
			if err := cm.write(ctx, c, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (cm *ConnectionManager) write(ctx context.Context, c *Client, msg ServerMessage) error {
	if c.conn == nil {
		return nil
	}
	if err := writeMessage(ctx, c.conn, msg); err != nil {
		cm.log.Debug().Err(err).Str("conn", c.ID).Msg("Write failed")
		c.cancel()
		return err
	}
	return nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
