// Package realtime follows live auctions over per-auction sockets and folds
// their events into a view model.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/dukerupert/bidwatch/internal/logging"
	"github.com/dukerupert/bidwatch/internal/reconnect"
	"github.com/dukerupert/bidwatch/internal/websocket"
)

var (
	ErrNoCredential = errors.New("no access token")
	ErrClosed       = errors.New("channel closed")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
)

type Config struct {
	BaseURL string
	// AutoReconnect redials a subject whose socket dropped. Off by default
	// so a server restart does not trigger a reconnect storm.
	AutoReconnect bool
	Reconnect     reconnect.Policy
}

type Listener func(Event)

type listener struct {
	fn Listener
}

type registration struct {
	subject    int64
	credential string
	state      State
	conn       websocket.Conn
	// gen changes whenever the current socket is abandoned. Reads and
	// dials tagged with an older gen are stale.
	gen       uint64
	removed   bool
	listeners map[EventType][]*listener
	consumers int
}

// Channel multiplexes auction subscriptions. Each subject has at most one
// socket; events for a subject are delivered in arrival order on that
// subject's read goroutine.
type Channel struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	regs   map[int64]*registration
	closed bool
}

func NewChannel(cfg Config, dialer websocket.Dialer, logger *slog.Logger) *Channel {
	if cfg.Reconnect == (reconnect.Policy{}) {
		cfg.Reconnect = reconnect.DefaultPolicy()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		cfg:    cfg,
		dialer: dialer,
		logger: logging.Or(logger).With("component", "realtime"),
		ctx:    ctx,
		cancel: cancel,
		regs:   make(map[int64]*registration),
	}
}

// lookup returns the registration for subject, creating it when missing.
// Callers hold c.mu.
func (c *Channel) lookup(subject int64) *registration {
	reg, ok := c.regs[subject]
	if !ok {
		reg = &registration{
			subject:   subject,
			state:     StateDisconnected,
			listeners: make(map[EventType][]*listener),
		}
		c.regs[subject] = reg
	}
	return reg
}

// Connect opens the socket for subject. It does nothing while the subject
// is already connecting or open.
func (c *Channel) Connect(ctx context.Context, subject int64, credential string) error {
	if credential == "" {
		return ErrNoCredential
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	reg := c.lookup(subject)
	if reg.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	reg.state = StateConnecting
	reg.credential = credential
	gen := reg.gen
	c.mu.Unlock()

	return c.dial(ctx, reg, gen)
}

func (c *Channel) dial(ctx context.Context, reg *registration, gen uint64) error {
	url := websocket.ToWebSocketURL(c.cfg.BaseURL, "ws", "auction", strconv.FormatInt(reg.subject, 10), reg.credential)
	conn, err := c.dialer.Dial(ctx, url)

	c.mu.Lock()
	if reg.removed || reg.gen != gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		reg.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Warn("auction socket dial failed", "auction_id", reg.subject, "error", err)
		c.dispatch(reg, gen, Disconnected{Err: err})
		return fmt.Errorf("connect auction %d: %w", reg.subject, err)
	}
	reg.conn = conn
	reg.state = StateOpen
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("auction socket open", "auction_id", reg.subject)
	c.dispatch(reg, gen, Connected{})
	go c.readLoop(reg, gen, conn)
	return nil
}

func (c *Channel) readLoop(reg *registration, gen uint64, conn websocket.Conn) {
	defer c.wg.Done()

	for {
		raw, err := conn.Read(c.ctx)
		if err != nil {
			c.transportClosed(reg, gen, conn, err)
			return
		}

		ev, err := decodeEvent(raw)
		if err != nil {
			c.logger.Warn("dropping malformed auction message", "auction_id", reg.subject, "error", err)
			continue
		}
		c.dispatch(reg, gen, ev)
	}
}

func (c *Channel) transportClosed(reg *registration, gen uint64, conn websocket.Conn, cause error) {
	c.mu.Lock()
	if reg.removed || reg.gen != gen {
		c.mu.Unlock()
		return
	}
	reg.gen++
	reg.state = StateDisconnected
	reg.conn = nil
	next := reg.gen
	redial := c.cfg.AutoReconnect && !c.closed
	if redial {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	conn.Close()
	if websocket.IsNormalClosure(cause) {
		c.logger.Info("auction socket closed", "auction_id", reg.subject)
	} else {
		c.logger.Warn("auction socket lost", "auction_id", reg.subject, "error", cause)
	}
	c.dispatch(reg, next, Disconnected{Err: cause})

	if redial {
		go c.redial(reg, next)
	}
}

func (c *Channel) redial(reg *registration, gen uint64) {
	defer c.wg.Done()

	err := reconnect.Run(c.ctx, c.cfg.Reconnect, func(ctx context.Context, attempt int) error {
		c.mu.Lock()
		if reg.removed || reg.gen != gen || reg.state != StateDisconnected {
			c.mu.Unlock()
			return reconnect.ErrStop
		}
		reg.state = StateConnecting
		c.mu.Unlock()

		c.logger.Info("reconnecting auction socket", "auction_id", reg.subject, "attempt", attempt)
		return c.dial(ctx, reg, gen)
	})
	if err != nil && !errors.Is(err, reconnect.ErrStop) && !errors.Is(err, context.Canceled) {
		c.logger.Warn("giving up on auction socket", "auction_id", reg.subject, "error", err)
	}
}

// On registers fn for events of type typ on subject and returns a function
// that removes it. Removing the last listener leaves the socket open.
func (c *Channel) On(subject int64, typ EventType, fn Listener) func() {
	l := &listener{fn: fn}

	c.mu.Lock()
	reg := c.lookup(subject)
	reg.listeners[typ] = append(slices.Clip(reg.listeners[typ]), l)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ls := reg.listeners[typ]
			if i := slices.Index(ls, l); i >= 0 {
				reg.listeners[typ] = slices.Delete(slices.Clone(ls), i, i+1)
			}
		})
	}
}

// dispatch runs the listeners registered for ev at the moment of the call.
// Listeners added or removed during dispatch take effect from the next
// event. Nothing runs once the registration has been disconnected.
func (c *Channel) dispatch(reg *registration, gen uint64, ev Event) {
	c.mu.Lock()
	if reg.removed || reg.gen != gen {
		c.mu.Unlock()
		return
	}
	snapshot := reg.listeners[ev.Kind()]
	c.mu.Unlock()

	for _, l := range snapshot {
		if !c.live(reg, gen) {
			return
		}
		c.call(reg.subject, l, ev)
	}
}

func (c *Channel) live(reg *registration, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !reg.removed && reg.gen == gen
}

func (c *Channel) call(subject int64, l *listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("auction listener panicked", "auction_id", subject, "event", ev.Kind(), "panic", r)
		}
	}()
	l.fn(ev)
}

// Disconnect closes the subject's socket and drops its listeners. It is
// safe to call for unknown subjects, more than once, and from a listener.
func (c *Channel) Disconnect(subject int64) {
	c.mu.Lock()
	reg, ok := c.regs[subject]
	if !ok {
		c.mu.Unlock()
		return
	}
	conn := c.remove(reg)
	c.mu.Unlock()

	c.closeAsync(conn)
}

// DisconnectAll disconnects every subject.
func (c *Channel) DisconnectAll() {
	c.mu.Lock()
	var conns []websocket.Conn
	for _, reg := range c.regs {
		if conn := c.remove(reg); conn != nil {
			conns = append(conns, conn)
		}
	}
	c.mu.Unlock()

	for _, conn := range conns {
		c.closeAsync(conn)
	}
}

// remove detaches reg and returns its socket, if any. Callers hold c.mu.
func (c *Channel) remove(reg *registration) websocket.Conn {
	delete(c.regs, reg.subject)
	reg.removed = true
	reg.gen++
	reg.state = StateDisconnected
	reg.listeners = nil
	conn := reg.conn
	reg.conn = nil
	if conn != nil {
		c.wg.Add(1)
	}
	return conn
}

func (c *Channel) closeAsync(conn websocket.Conn) {
	if conn == nil {
		return
	}
	go func() {
		defer c.wg.Done()
		conn.Close()
	}()
}

// Close disconnects everything and waits for socket goroutines to exit.
// The channel cannot be reused.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.DisconnectAll()
	c.cancel()
	c.wg.Wait()
}

func (c *Channel) State(subject int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reg, ok := c.regs[subject]; ok {
		return reg.state
	}
	return StateDisconnected
}

// OpenSubjects returns the subjects whose socket is currently open, sorted.
func (c *Channel) OpenSubjects() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int64
	for id, reg := range c.regs {
		if reg.state == StateOpen {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// acquire and release count the trackers sharing a subject.
func (c *Channel) acquire(subject int64) {
	c.mu.Lock()
	c.lookup(subject).consumers++
	c.mu.Unlock()
}

// release drops one consumer and, when it was the last, disconnects the
// subject under the same lock so a concurrent acquire either keeps it alive
// or starts a fresh registration. It reports whether it disconnected.
func (c *Channel) release(subject int64) bool {
	c.mu.Lock()
	reg, ok := c.regs[subject]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if reg.consumers > 0 {
		reg.consumers--
	}
	if reg.consumers > 0 {
		c.mu.Unlock()
		return false
	}
	conn := c.remove(reg)
	c.mu.Unlock()

	c.closeAsync(conn)
	return true
}
