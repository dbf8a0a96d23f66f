package websocket_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/bidwatch/internal/websocket"
	"github.com/dukerupert/bidwatch/internal/websocket/wstest"
)

func TestDialReadClose(t *testing.T) {
	srv, hub := wstest.NewServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := websocket.NewDialer(nil, websocket.WithPingInterval(50*time.Millisecond))
	conn, err := d.Dial(ctx, websocket.ToWebSocketURL(srv.URL, "ws", "auction", "7", "tok"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if path := hub.WaitJoined(2 * time.Second); path != "/ws/auction/7/tok" {
		t.Fatalf("joined path = %q", path)
	}

	if err := hub.Send("bid_update", map[string]int{"bid_price": 5}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	msg, err := websocket.ParseMessage(raw)
	if err != nil || msg.Type != "bid_update" {
		t.Fatalf("message = %+v, %v", msg, err)
	}

	hub.CloseAll()
	if _, err := conn.Read(ctx); err == nil {
		t.Fatal("Read after server close succeeded")
	} else if !websocket.IsNormalClosure(err) {
		t.Errorf("IsNormalClosure(%v) = false", err)
	}

	if err := conn.Close(); err != nil {
		t.Logf("Close after server close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Logf("second Close: %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	d := websocket.NewDialer(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := d.Dial(ctx, "ws://127.0.0.1:1/ws/auction/1/x"); err == nil {
		t.Fatal("Dial to closed port succeeded")
	}
}
