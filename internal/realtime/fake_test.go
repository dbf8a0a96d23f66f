package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/bidwatch/internal/websocket"
)

var errFakeClosed = errors.New("fake conn closed")

// fakeConn delivers queued messages before reporting a close, so tests can
// stage a message that arrives after the consumer has gone away.
type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
	closes atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 64), closed: make(chan struct{})}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	default:
	}
	select {
	case m := <-f.msgs:
		return m, nil
	case <-f.closed:
		return nil, errFakeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.closes.Add(1)
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) send(t *testing.T, typ string, data any) {
	t.Helper()
	msg, err := websocket.NewMessage(typ, data)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.msgs <- raw
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	fail  error
	gate  chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (websocket.Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func newTestChannel(t *testing.T, cfg Config) (*Channel, *fakeDialer) {
	t.Helper()
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://api.test"
	}
	d := &fakeDialer{}
	ch := NewChannel(cfg, d, nil)
	t.Cleanup(ch.Close)
	return ch, d
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// collect returns a listener that forwards events to a buffered channel.
func collect() (Listener, chan Event) {
	ch := make(chan Event, 64)
	return func(ev Event) { ch <- ev }, ch
}

func next(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func ptr[T any](v T) *T { return &v }
