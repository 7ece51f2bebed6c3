// Package upstream implements the dual-subscription WebSocket client of
// spec §4.1: a trade-stream connection and a new-token-stream connection
// against the same venue, reconnecting independently with capped
// linear backoff. Grounded on the teacher's websocket.Client
// (connect/ping/write-mutex/close pattern), adapted from protobuf binary
// frames to this venue's plain JSON text frames.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ReadResult is the sentinel result of one read attempt, replacing the
// exception-as-control-flow idiom of the source tracker (spec §9): a read
// either produced a frame, hit the idle timeout, or found the connection
// closed.
type ReadResult struct {
	Kind    ReadKind
	Payload []byte
}

// ReadKind enumerates the possible ReadResult outcomes.
type ReadKind int

const (
	ReadFrame ReadKind = iota
	ReadIdleTimeout
	ReadClosed
)

// Client is a single logical WebSocket connection to the trade venue. It is
// reused for both the trade-stream and new-token-stream connections — spec
// §4.1 treats them as two independent long-lived subscriptions, each
// backed by its own Client instance and its own reconnect loop.
type Client struct {
	url                 string
	connectionTimeout   time.Duration
	pingInterval        time.Duration
	pingTimeout         time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	writeMu    sync.Mutex
	pingCancel context.CancelFunc
}

// NewClient builds a Client for url with the given connection/ping
// parameters. Call Connect before Read/Write.
func NewClient(url string, connectionTimeout, pingInterval, pingTimeout time.Duration) *Client {
	return &Client{
		url:               url,
		connectionTimeout: connectionTimeout,
		pingInterval:      pingInterval,
		pingTimeout:       pingTimeout,
	}
}

// Connect dials the venue endpoint and starts the ping loop.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.connectionTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("upstream: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.startPing()
	return nil
}

// startPing runs a background ticker sending pings at pingInterval. It is
// cancelled on Close or on the next Connect.
func (c *Client) startPing() {
	if c.pingCancel != nil {
		c.pingCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.writePing(); err != nil {
					return
				}
			}
		}
	}()
}

func (c *Client) writePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("upstream: not connected")
	}
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pingTimeout))
}

// Subscribe sends a control frame. method is "subscribeNewToken" (no keys)
// or "subscribeTokenTrade" (with token addresses as keys), per spec §6's
// wire protocol.
func (c *Client) Subscribe(method string, keys []string) error {
	frame := map[string]any{"method": method}
	if len(keys) > 0 {
		frame["keys"] = keys
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("upstream: marshal subscribe frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("upstream: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Read blocks for at most idleTimeout waiting for the next frame. It
// returns a ReadResult instead of raising on timeout, per spec §9's
// explicit-sentinel redesign note. idleTimeout is expected to be the 1s
// soft timeout of spec §5 so the caller's loop stays responsive to
// cancellation and the buffer-evict cadence.
func (c *Client) Read(idleTimeout time.Duration) ReadResult {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ReadResult{Kind: ReadClosed}
	}

	conn.SetReadDeadline(time.Now().Add(idleTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return ReadResult{Kind: ReadClosed}
		}
		if isTimeout(err) {
			return ReadResult{Kind: ReadIdleTimeout}
		}
		return ReadResult{Kind: ReadClosed}
	}
	return ReadResult{Kind: ReadFrame, Payload: payload}
}

func isTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}

// Close cancels the ping loop and closes the underlying connection.
func (c *Client) Close() error {
	if c.pingCancel != nil {
		c.pingCancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// BackoffDelay computes the capped linear backoff of spec §4.1:
// min(baseRetry * (1 + 0.5*n), maxRetry), where n is the consecutive
// failure count.
func BackoffDelay(baseRetry, maxRetry time.Duration, n int) time.Duration {
	scaled := float64(baseRetry) * (1 + 0.5*float64(n))
	if scaled > float64(maxRetry) {
		return maxRetry
	}
	return time.Duration(math.Round(scaled))
}

// logReconnect is a small helper kept distinct from the retry loop itself
// so tests can exercise BackoffDelay without a real socket.
func logReconnect(label string, attempt int, delay time.Duration) {
	log.Printf("🔄 %s: reconnecting (attempt %d) in %v", label, attempt, delay)
}
