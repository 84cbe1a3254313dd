// Package push maintains the live websocket subscription to the
// backend's per-event notification topic.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"guestbookdash/internal/domain"
)

const (
	handshakeTimeout = 10 * time.Second
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
)

// joinMessage subscribes the connection to one event's topic.
type joinMessage struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
}

// Channel is a PushChannel over a websocket. One logical subscription
// scoped to exactly one event id at a time; reconnects with backoff on
// transport-level drops and re-joins the topic.
type Channel struct {
	url    string
	logger *slog.Logger
	dialer *websocket.Dialer

	notifications chan domain.Notification
	states        chan domain.ConnState

	mu      sync.Mutex
	eventID string
	conn    *websocket.Conn
	cancel  context.CancelFunc
}

func NewChannel(url string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		url:           url,
		logger:        logger,
		dialer:        &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		notifications: make(chan domain.Notification, 64),
		states:        make(chan domain.ConnState, 8),
	}
}

// Notifications yields the ordered, at-least-once stream of server
// notifications for the subscribed event.
func (c *Channel) Notifications() <-chan domain.Notification {
	return c.notifications
}

// States yields connection-state transitions.
func (c *Channel) States() <-chan domain.ConnState {
	return c.states
}

// Connect opens the subscription for eventID. Calling it again with
// the same id while connected is a no-op; a different id replaces the
// old subscription.
func (c *Channel) Connect(ctx context.Context, eventID string) error {
	if eventID == "" {
		return domain.ErrInvalidInput
	}

	c.mu.Lock()
	if c.conn != nil && c.eventID == eventID {
		c.mu.Unlock()
		return nil
	}
	if c.conn != nil {
		c.closeLocked()
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx, eventID)
	if err != nil {
		c.emitState(domain.ConnError)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.eventID = eventID
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	c.emitState(domain.ConnConnected)
	go c.readLoop(loopCtx, eventID)
	return nil
}

// Disconnect tears down the subscription. Safe to call when already
// disconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	open := c.conn != nil
	if open {
		c.closeLocked()
	}
	c.mu.Unlock()
	if open {
		c.emitState(domain.ConnDisconnected)
	}
}

// closeLocked cancels the read loop and closes the socket. Caller must
// hold mu.
func (c *Channel) closeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.eventID = ""
}

func (c *Channel) dial(ctx context.Context, eventID string) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrConnection, c.url, err)
	}
	if err := conn.WriteJSON(joinMessage{Type: "join_event", EventID: eventID}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: join event %s: %v", domain.ErrConnection, eventID, err)
	}
	return conn, nil
}

// readLoop consumes messages until the subscription is torn down,
// reconnecting on transport errors.
func (c *Channel) readLoop(ctx context.Context, eventID string) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil || ctx.Err() != nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("push connection lost", "event_id", eventID, "err", err)
			c.emitState(domain.ConnDisconnected)
			if !c.reconnect(ctx, eventID) {
				return
			}
			continue
		}

		var n domain.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			c.logger.Warn("discarding malformed push message", "err", err)
			continue
		}
		if n.EventID != "" && n.EventID != eventID {
			continue
		}
		select {
		case c.notifications <- n:
		case <-ctx.Done():
			return
		}
	}
}

// reconnect retries the dial with exponential backoff until it
// succeeds or the subscription is cancelled.
func (c *Channel) reconnect(ctx context.Context, eventID string) bool {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		conn, err := c.dial(ctx, eventID)
		if err == nil {
			c.mu.Lock()
			if ctx.Err() != nil {
				c.mu.Unlock()
				_ = conn.Close()
				return false
			}
			c.conn = conn
			c.mu.Unlock()
			c.emitState(domain.ConnConnected)
			return true
		}
		c.logger.Warn("push reconnect failed", "event_id", eventID, "backoff", backoff, "err", err)
		c.emitState(domain.ConnError)
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// emitState never blocks; a consumer that has fallen behind sees the
// latest transitions only.
func (c *Channel) emitState(s domain.ConnState) {
	select {
	case c.states <- s:
	default:
	}
}
