// Package notifications receives account-wide events (outbid, won, payment
// required, unread counts) over a socket and an event stream in parallel.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/bidwatch/internal/logging"
	"github.com/dukerupert/bidwatch/internal/notify"
	"github.com/dukerupert/bidwatch/internal/reconnect"
	"github.com/dukerupert/bidwatch/internal/sse"
	"github.com/dukerupert/bidwatch/internal/websocket"
)

var (
	ErrNoCredential = errors.New("no access token")
	ErrClosed       = errors.New("notification channel closed")
)

type Config struct {
	BaseURL string
	// AutoReconnect redials a dropped socket or stream. Off by default.
	AutoReconnect bool
	Reconnect     reconnect.Policy
}

type Listener func(Event)

type listener struct {
	fn Listener
}

// link is the state of one transport. gen changes whenever the current
// connection is abandoned, so reads from an older one are ignored.
type link struct {
	connecting bool
	up         bool
	gen        uint64
	stop       func()
}

type Channel struct {
	cfg        Config
	dialer     websocket.Dialer
	httpClient *http.Client
	notifier   notify.Notifier
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	credential string
	ws         link
	stream     link
	listeners  map[EventType][]*listener
	closed     bool
}

// New builds a channel. httpClient carries the event stream and must not
// set an overall Timeout.
func New(cfg Config, dialer websocket.Dialer, httpClient *http.Client, notifier notify.Notifier, logger *slog.Logger) *Channel {
	if cfg.Reconnect == (reconnect.Policy{}) {
		cfg.Reconnect = reconnect.DefaultPolicy()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		cfg:        cfg,
		dialer:     dialer,
		httpClient: httpClient,
		notifier:   notify.OrDiscard(notifier),
		logger:     logging.Or(logger).With("component", "notifications"),
		ctx:        ctx,
		cancel:     cancel,
		listeners:  make(map[EventType][]*listener),
	}
}

// Connect starts both transports for the given access token. Each is
// attempted independently; the returned error reports the first failure
// while the other transport may still be up.
func (c *Channel) Connect(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrNoCredential
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.credential = credential
	c.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error { return c.connectWS(ctx) })
	g.Go(func() error { return c.connectSSE(ctx) })
	return g.Wait()
}

func (c *Channel) WSConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.up
}

func (c *Channel) SSEConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.up
}

// begin marks l as connecting and returns its generation, or false when it
// is already connecting or up.
func (c *Channel) begin(l *link) (uint64, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || l.connecting || l.up {
		return 0, "", false
	}
	l.connecting = true
	return l.gen, c.credential, true
}

// establish records a successful connection unless it was superseded.
// On success the caller owns one c.wg slot for its read goroutine.
func (c *Channel) establish(l *link, gen uint64, stop func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || l.gen != gen {
		return false
	}
	l.connecting = false
	l.up = true
	l.stop = stop
	c.wg.Add(1)
	return true
}

func (c *Channel) failed(l *link, gen uint64) {
	c.mu.Lock()
	if l.gen == gen {
		l.connecting = false
	}
	c.mu.Unlock()
}

func (c *Channel) connectWS(ctx context.Context) error {
	gen, cred, ok := c.begin(&c.ws)
	if !ok {
		return nil
	}

	url := websocket.ToWebSocketURL(c.cfg.BaseURL, "ws", "notifications", cred)
	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		c.failed(&c.ws, gen)
		c.logger.Warn("notification socket unavailable", "error", err)
		return fmt.Errorf("connect notification socket: %w", err)
	}
	if !c.establish(&c.ws, gen, func() { conn.Close() }) {
		conn.Close()
		return nil
	}

	c.dispatch(TransportWebSocket, gen, Connected{Transport: TransportWebSocket})
	go c.readWS(gen, conn)
	return nil
}

func (c *Channel) readWS(gen uint64, conn websocket.Conn) {
	defer c.wg.Done()
	for {
		raw, err := conn.Read(c.ctx)
		if err != nil {
			conn.Close()
			c.lost(TransportWebSocket, gen, err)
			return
		}
		msg, err := websocket.ParseMessage(raw)
		if err != nil {
			c.logger.Warn("dropping malformed notification", "error", err)
			continue
		}
		c.handle(TransportWebSocket, gen, msg.Type, msg.Data, raw)
	}
}

func (c *Channel) connectSSE(ctx context.Context) error {
	gen, cred, ok := c.begin(&c.stream)
	if !ok {
		return nil
	}

	streamCtx, cancel := context.WithCancel(c.ctx)
	// ctx bounds only the handshake; the stream lives until Disconnect.
	stopHandshake := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+"/sse/notifications", nil)
	if err != nil {
		stopHandshake()
		cancel()
		c.failed(&c.stream, gen)
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+cred)

	resp, err := c.httpClient.Do(req)
	stopHandshake()
	if err == nil && resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err = fmt.Errorf("status %d", resp.StatusCode)
	}
	if err != nil {
		cancel()
		c.failed(&c.stream, gen)
		c.logger.Warn("notification stream unavailable", "error", err)
		return fmt.Errorf("connect notification stream: %w", err)
	}

	stop := func() {
		cancel()
		resp.Body.Close()
	}
	if !c.establish(&c.stream, gen, stop) {
		stop()
		return nil
	}

	go c.readSSE(gen, resp.Body, stop)
	return nil
}

func (c *Channel) readSSE(gen uint64, body io.Reader, stop func()) {
	defer c.wg.Done()
	r := sse.NewReader(body)
	for {
		ev, err := r.Next()
		if err != nil {
			stop()
			c.lost(TransportSSE, gen, err)
			return
		}
		c.handle(TransportSSE, gen, ev.Name, []byte(ev.Data), []byte(ev.Data))
	}
}

func (c *Channel) handle(t Transport, gen uint64, typ string, data, raw []byte) {
	ev, err := decode(typ, data, raw, t)
	if errors.Is(err, errHeartbeat) {
		return
	}
	if err != nil {
		c.logger.Warn("dropping malformed notification", "transport", t, "type", typ, "error", err)
		return
	}

	if !c.current(t, gen) {
		return
	}
	for _, n := range notices(ev) {
		c.notifier.Show(n)
	}
	c.dispatch(t, gen, ev)
}

// lost marks a transport down after its connection ended by itself.
func (c *Channel) lost(t Transport, gen uint64, cause error) {
	l := c.link(t)
	c.mu.Lock()
	if l.gen != gen || !l.up {
		c.mu.Unlock()
		return
	}
	l.up = false
	l.stop = nil
	l.gen++
	next := l.gen
	redial := c.cfg.AutoReconnect && !c.closed
	if redial {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	c.logger.Info("notification transport closed", "transport", t, "error", cause)
	c.dispatch(t, next, Disconnected{Transport: t, Err: cause})

	if redial {
		go c.redial(t, next)
	}
}

func (c *Channel) redial(t Transport, gen uint64) {
	defer c.wg.Done()
	err := reconnect.Run(c.ctx, c.cfg.Reconnect, func(ctx context.Context, attempt int) error {
		if !c.current(t, gen) {
			return reconnect.ErrStop
		}
		c.logger.Info("reconnecting notification transport", "transport", t, "attempt", attempt)
		if t == TransportWebSocket {
			return c.connectWS(ctx)
		}
		return c.connectSSE(ctx)
	})
	if err != nil && !errors.Is(err, reconnect.ErrStop) && !errors.Is(err, context.Canceled) {
		c.logger.Warn("giving up on notification transport", "transport", t, "error", err)
	}
}

func (c *Channel) link(t Transport) *link {
	if t == TransportWebSocket {
		return &c.ws
	}
	return &c.stream
}

func (c *Channel) current(t Transport, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.link(t).gen == gen
}

// On registers fn for events of type typ and returns a function that
// removes it.
func (c *Channel) On(typ EventType, fn Listener) func() {
	l := &listener{fn: fn}
	c.mu.Lock()
	c.listeners[typ] = append(slices.Clip(c.listeners[typ]), l)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ls := c.listeners[typ]
			if i := slices.Index(ls, l); i >= 0 {
				c.listeners[typ] = slices.Delete(slices.Clone(ls), i, i+1)
			}
		})
	}
}

func (c *Channel) dispatch(t Transport, gen uint64, ev Event) {
	c.mu.Lock()
	snapshot := c.listeners[ev.Kind()]
	c.mu.Unlock()

	for _, l := range snapshot {
		if !c.current(t, gen) {
			return
		}
		c.call(l, ev)
	}
}

func (c *Channel) call(l *listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("notification listener panicked", "event", ev.Kind(), "panic", r)
		}
	}()
	l.fn(ev)
}

// Disconnect closes both transports. Listeners stay registered for a later
// Connect. It is safe to call when nothing is connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	var stops []func()
	for _, l := range []*link{&c.ws, &c.stream} {
		if l.stop != nil {
			stops = append(stops, l.stop)
		}
		l.stop = nil
		l.up = false
		l.connecting = false
		l.gen++
	}
	c.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// Close disconnects, drops every listener and waits for the read
// goroutines to exit.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()

	c.mu.Lock()
	c.listeners = make(map[EventType][]*listener)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
