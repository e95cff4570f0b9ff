// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	// ErrClientClosed is returned by Write once the client has been closed.
	ErrClientClosed = errors.New("server: client closed")
	// ErrSendQueueFull is returned by Write when the outbound queue has no room.
	ErrSendQueueFull = errors.New("server: send queue full")
)

type outbound struct {
	frame []byte
	done  func(error)
}

// Client represents one WebSocket connection. It implements registry.Handle:
// the registry and processors hold it by reference and never own its lifecycle.
type Client struct {
	id   string
	conn *websocket.Conn
	addr string

	mu      sync.Mutex
	closed  bool
	send    chan outbound
	closing chan struct{}
	once    sync.Once

	// authUID is the user the upgrade token was issued to; 0 when the
	// server runs without boundary auth. Set before the pumps start.
	authUID int64

	worker      *worker
	onClose     func(*Client)
	rateLimiter *rateLimiter
	rateLimit   RateLimitConfig

	maxMessageSize int64
	logger         *slog.Logger
}

// newClient creates a Client for conn. Frames decoded by the read pump are
// submitted to w; onClose runs once after the read pump exits.
func newClient(conn *websocket.Conn, addr string, cfg *Config, w *worker, onClose func(*Client), logger *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := uuid.NewString()

	return &Client{
		id:             id,
		conn:           conn,
		addr:           addr,
		send:           make(chan outbound, cfg.SendQueue),
		closing:        make(chan struct{}),
		worker:         w,
		onClose:        onClose,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		maxMessageSize: cfg.MaxMessageSize,
		logger:         logger.With(slog.String("client", id), slog.String("remote", addr)),
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string { return c.id }

// AuthenticatedUID returns the user bound to the connection at upgrade, or 0.
func (c *Client) AuthenticatedUID() int64 { return c.authUID }

// permits reports whether env may be processed on this connection. An
// authenticated connection may only speak for its own user; envelopes
// without a uid pass through so the processors can answer them.
func (c *Client) permits(env *protocol.Envelope) bool {
	return c.authUID == 0 || env.UID == 0 || env.UID == c.authUID
}

// Active reports whether the client still accepts writes.
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Write queues frame for delivery. When Write returns nil, done (if non-nil)
// runs exactly once from the write pump after the frame has been flushed or
// has failed. When Write returns an error, done is never called.
func (c *Client) Write(frame []byte, done func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- outbound{frame: frame, done: done}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close marks the client inactive and asks the write pump to send a close
// frame and tear down the connection. It is safe to call more than once and
// from any goroutine.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.closing)
	})
	return nil
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("set initial read deadline", slog.Any("error", err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("set read deadline in pong handler", slog.Any("error", err))
		}
		return nil
	})
}

// logReadError logs a read failure at a level matching how expected it is.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size", slog.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", slog.Any("reason", err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("connection closed", slog.Any("reason", err))
	default:
		c.logger.Warn("websocket read error", slog.Any("error", err))
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn("rate limit exceeded; discarding message",
			slog.Int("burst", c.rateLimit.Burst),
			slog.Duration("interval", c.rateLimit.RefillInterval))
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		_ = c.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.setupReadConnection()

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("dropping non-text frame", slog.Int("type", messageType))
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", slog.Any("error", err))
			continue
		}

		if !c.permits(env) {
			c.logger.Warn("dropping envelope for another user",
				slog.Int64("uid", env.UID),
				slog.Int64("auth_uid", c.authUID))
			continue
		}

		if !c.worker.submit(job{client: c, env: env}, c.closing) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
		c.failPending()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case msg := <-c.send:
		return c.writeFrame(msg)
	case <-ticker.C:
		return c.handlePing()
	case <-c.closing:
		c.writeCloseMessage()
		return false
	}
}

// writeFrame writes one envelope as one text frame, then reports the outcome
// to the frame's completion callback.
func (c *Client) writeFrame(msg outbound) bool {
	err := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err == nil {
		err = c.conn.WriteMessage(websocket.TextMessage, msg.frame)
	}
	if msg.done != nil {
		msg.done(err)
	}
	if err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("write message", slog.Any("error", err))
		}
		_ = c.Close()
		return false
	}
	return true
}

// failPending completes every frame still queued after the pump stops.
// Close holds c.mu while flipping closed, so nothing is enqueued after this.
func (c *Client) failPending() {
	for {
		select {
		case msg := <-c.send:
			if msg.done != nil {
				msg.done(ErrClientClosed)
			}
		default:
			return
		}
	}
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("write close message", slog.Any("error", err))
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("close connection", slog.Any("error", err))
		}
	}
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline for ping", slog.Any("error", err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("write ping", slog.Any("error", err))
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
