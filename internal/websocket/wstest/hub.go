// Package wstest runs an in-process socket server that broadcasts
// envelopes to every connected client.
package wstest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/bidwatch/internal/websocket"
)

const sendBufferSize = 16

type peer struct {
	path string
	conn *ws.Conn
	send chan []byte
}

// Hub tracks accepted sockets and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	peers   map[*peer]struct{}
	accepts []string
	joined  chan string
}

func NewHub() *Hub {
	return &Hub{
		peers:  make(map[*peer]struct{}),
		joined: make(chan string, 64),
	}
}

// Handler upgrades every request and serves it until either side closes.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		p := &peer{path: r.URL.Path, conn: conn, send: make(chan []byte, sendBufferSize)}
		h.register(p)
		defer h.unregister(p)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg, ok := <-p.send:
				if !ok {
					conn.Close(ws.StatusNormalClosure, "")
					return
				}
				if err := conn.Write(ctx, ws.MessageText, msg); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.accepts = append(h.accepts, p.path)
	h.mu.Unlock()
	h.joined <- p.path
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.send)
	}
	h.mu.Unlock()
}

// WaitJoined blocks until a client connects and returns its request path,
// or "" after timeout.
func (h *Hub) WaitJoined(timeout time.Duration) string {
	select {
	case path := <-h.joined:
		return path
	case <-time.After(timeout):
		return ""
	}
}

// Send queues a {type, data} envelope for every connected client.
func (h *Hub) Send(typ string, data any) error {
	msg, err := websocket.NewMessage(typ, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.SendRaw(raw)
	return nil
}

// SendRaw queues raw bytes for every connected client. A full buffer drops
// the message for that client.
func (h *Hub) SendRaw(raw []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		select {
		case p.send <- raw:
		default:
		}
	}
}

// CloseAll closes every connection from the server side.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		delete(h.peers, p)
		close(p.send)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Accepts returns the request paths of every connection accepted so far.
func (h *Hub) Accepts() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.accepts...)
}

// NewServer starts an httptest server backed by a fresh hub.
func NewServer() (*httptest.Server, *Hub) {
	h := NewHub()
	return httptest.NewServer(h.Handler()), h
}
