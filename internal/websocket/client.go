// Package websocket dials the marketplace's real-time sockets.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/bidwatch/internal/logging"
)

const (
	pingInterval = 30 * time.Second
	closeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

// Conn is an open socket delivering inbound messages.
type Conn interface {
	// Read blocks until the next message arrives or the socket closes.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens sockets. Tests substitute in-memory implementations.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type WSDialer struct {
	httpClient   *http.Client
	pingInterval time.Duration
	logger       *slog.Logger
}

type DialerOption func(*WSDialer)

func WithHTTPClient(c *http.Client) DialerOption {
	return func(d *WSDialer) {
		d.httpClient = c
	}
}

// WithPingInterval sets how often idle sockets are pinged. Zero disables pings.
func WithPingInterval(d time.Duration) DialerOption {
	return func(w *WSDialer) {
		w.pingInterval = d
	}
}

func NewDialer(logger *slog.Logger, opts ...DialerOption) *WSDialer {
	d := &WSDialer{
		pingInterval: pingInterval,
		logger:       logging.Or(logger),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial completes the handshake under ctx. The returned connection outlives ctx.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{HTTPClient: d.httpClient})
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(readLimit)

	pingCtx, cancel := context.WithCancel(context.Background())
	c := &Client{conn: conn, cancel: cancel, logger: d.logger}
	if d.pingInterval > 0 {
		go c.pingPump(pingCtx, d.pingInterval)
	}
	return c, nil
}

// Client is a dialed socket. Pings run in the background so stale
// connections surface as read errors.
type Client struct {
	conn   *ws.Conn
	cancel context.CancelFunc
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (c *Client) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close performs the closing handshake, giving the peer a bounded time to
// answer. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		done := make(chan error, 1)
		go func() {
			done <- c.conn.Close(ws.StatusNormalClosure, "")
		}()
		select {
		case c.closeErr = <-done:
		case <-time.After(closeTimeout):
			c.closeErr = c.conn.CloseNow()
		}
	})
	return c.closeErr
}

func (c *Client) pingPump(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("websocket ping failed", "error", err)
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// IsNormalClosure reports whether err is a clean close by either side.
func IsNormalClosure(err error) bool {
	switch ws.CloseStatus(err) {
	case ws.StatusNormalClosure, ws.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}
