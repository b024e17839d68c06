package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"NexusProject/logger"
)

const (
	sendQueueSize = 256
	pingInterval  = 25 * time.Second
	writeWait     = 10 * time.Second
)

// Identity is the claim bound to a connection by a successful auth envelope.
// Immutable for the connection's lifetime.
type Identity struct {
	UserID      int64
	DisplayName string
}

// Client is one websocket session. A single writer goroutine consumes Send;
// everything else enqueues. The identity is bound at most once.
type Client struct {
	ConnID string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}

	closeOnce sync.Once

	mu    sync.RWMutex
	ident *Identity
}

func NewClient(connID string, ws *websocket.Conn) *Client {
	return &Client{
		ConnID: connID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Bind attaches the identity claim. Only the first bind sticks.
func (c *Client) Bind(id Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ident != nil {
		return false
	}
	c.ident = &id
	return true
}

func (c *Client) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ident == nil {
		return Identity{}, false
	}
	return *c.ident, true
}

// Enqueue pushes one serialized envelope onto the outbound queue without
// blocking. false means the queue is full or the client is closed; callers
// treat that as a dead consumer.
func (c *Client) Enqueue(payload []byte) bool {
	if len(payload) == 0 {
		return true
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close is idempotent and is the only cancellation signal: it unblocks the
// writer and, by closing the socket, the reader.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = c.ws.Close()
		}
	})
}

// writeLoop is the single writer: payloads first, pings on the ticker.
// onPing runs after every successful ping (presence TTL renewal).
func (c *Client) writeLoop(onPing func()) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debugf("[ws] write err conn=%s err=%v", c.ConnID, err)
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Debugf("[ws] ping err conn=%s err=%v", c.ConnID, err)
				return
			}
			if onPing != nil {
				onPing()
			}
		}
	}
}
