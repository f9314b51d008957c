// Package transport implements the named-message channel to the IDE server
// over a WebSocket connection: request/response correlation by message ID
// plus delivery of unsolicited pushes to the session.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/WINOT/wide.py/internal/domain"
	"github.com/WINOT/wide.py/internal/domain/ports"
	"github.com/WINOT/wide.py/internal/protocol"
)

const (
	// Default timeouts for WebSocket operations.
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 15 * time.Second

	// Default maximum message size (512KB).
	DefaultMaxMessageSize = 512 * 1024

	// Ping interval for keepalive
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 60 * time.Second

	// Buffer for inbound pushes before the session drains them.
	inboundBufferSize = 256
)

// WebSocketChannel implements ports.Channel over a WebSocket connection.
type WebSocketChannel struct {
	id   string
	conn *websocket.Conn

	writeTimeout     time.Duration
	handshakeTimeout time.Duration

	writeMu sync.Mutex // serializes writes to conn

	nextID    int64
	pending   map[int64]chan *protocol.Message
	pendingMu sync.Mutex

	inbound chan protocol.Message

	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// Option configures a WebSocketChannel.
type Option func(*WebSocketChannel)

// WithWriteTimeout sets the write timeout for outgoing messages.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *WebSocketChannel) {
		c.writeTimeout = d
	}
}

// WithHandshakeTimeout bounds the opening handshake when dialing.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *WebSocketChannel) {
		c.handshakeTimeout = d
	}
}

// Dial connects to the server's named-message endpoint.
func Dial(url string, opts ...Option) (*WebSocketChannel, error) {
	settings := &WebSocketChannel{handshakeTimeout: DefaultHandshakeTimeout}
	for _, opt := range opts {
		opt(settings)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: settings.handshakeTimeout,
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	return NewWebSocketChannel(conn, opts...), nil
}

// NewWebSocketChannel wraps an established connection.
func NewWebSocketChannel(conn *websocket.Conn, opts ...Option) *WebSocketChannel {
	c := &WebSocketChannel{
		id:           uuid.New().String(),
		conn:         conn,
		writeTimeout: DefaultWriteTimeout,
		nextID:       1,
		pending:      make(map[int64]chan *protocol.Message),
		inbound:      make(chan protocol.Message, inboundBufferSize),
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	conn.SetReadLimit(DefaultMaxMessageSize)
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(DefaultPongTimeout))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	return c
}

// ID returns the unique identifier for this connection.
func (c *WebSocketChannel) ID() string {
	return c.id
}

// Inbound returns the channel carrying unsolicited server pushes. It is
// closed when the connection goes away.
func (c *WebSocketChannel) Inbound() <-chan protocol.Message {
	return c.inbound
}

// Done returns a channel that's closed when the connection is closed.
func (c *WebSocketChannel) Done() <-chan struct{} {
	return c.done
}

// Request sends an opcode-tagged payload and waits for the response bearing
// the same ID.
func (c *WebSocketChannel) Request(ctx context.Context, op string, payload interface{}) (json.RawMessage, error) {
	c.pendingMu.Lock()
	id := c.nextID
	c.nextID++
	respCh := make(chan *protocol.Message, 1)
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	msg, err := protocol.NewRequest(id, op, payload)
	if err != nil {
		c.dropPending(id)
		return nil, err
	}

	if err := c.write(msg); err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("failed to send %s request: %w", op, err)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, domain.ErrTransportClosed
		}
		if resp.IsError() {
			return nil, resp.Error
		}
		return resp.Payload, nil
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, domain.ErrTransportClosed
	}
}

// Push sends an opcode-tagged payload without expecting a response.
func (c *WebSocketChannel) Push(op string, payload interface{}) error {
	msg, err := protocol.NewPush(op, payload)
	if err != nil {
		return err
	}
	return c.write(msg)
}

func (c *WebSocketChannel) write(msg *protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return domain.ErrTransportClosed
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(msg)
}

// readLoop reads wire messages, routing responses to their waiting callers
// and pushes to the inbound channel.
func (c *WebSocketChannel) readLoop() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
			close(c.done)
		}
		c.mu.Unlock()

		c.pendingMu.Lock()
		for _, ch := range c.pending {
			close(ch)
		}
		c.pending = make(map[int64]chan *protocol.Message)
		c.pendingMu.Unlock()

		close(c.inbound)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Str("conn_id", c.id).Err(err).Msg("read loop terminated")
			}
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			log.Warn().Str("conn_id", c.id).Err(err).Msg("discarding malformed message")
			continue
		}

		if msg.IsResponse() {
			c.pendingMu.Lock()
			ch, ok := c.pending[*msg.ID]
			if ok {
				delete(c.pending, *msg.ID)
			}
			c.pendingMu.Unlock()

			if ok {
				ch <- msg
			} else {
				log.Warn().Str("conn_id", c.id).Int64("id", *msg.ID).Msg("response with no waiting request")
			}
			continue
		}

		select {
		case c.inbound <- *msg:
		default:
			log.Warn().Str("conn_id", c.id).Str("op", msg.Op).Msg("inbound push dropped: buffer full")
		}
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (c *WebSocketChannel) pingLoop() {
	ticker := time.NewTicker(DefaultPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *WebSocketChannel) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Close closes the connection. Safe to call multiple times.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	// Send close frame before closing
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

var _ ports.Channel = (*WebSocketChannel)(nil)
