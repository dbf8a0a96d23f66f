package websocket

import (
	"testing"
)

func TestToWebSocketURL(t *testing.T) {
	tests := []struct {
		base string
		segs []string
		want string
	}{
		{"http://localhost:8000", []string{"ws", "auction", "7", "tok"}, "ws://localhost:8000/ws/auction/7/tok"},
		{"https://api.example.com/", []string{"ws", "notifications", "a.b"}, "wss://api.example.com/ws/notifications/a.b"},
		{"ws://already", []string{"x"}, "ws://already/x"},
		{"http://h", []string{"ws", "auction", "1", "a/b"}, "ws://h/ws/auction/1/a%2Fb"},
	}
	for _, tt := range tests {
		if got := ToWebSocketURL(tt.base, tt.segs...); got != tt.want {
			t.Errorf("ToWebSocketURL(%q, %v) = %q, want %q", tt.base, tt.segs, got, tt.want)
		}
	}
}

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"bid_update","data":{"bid_price":5}}`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if m.Type != "bid_update" || string(m.Data) != `{"bid_price":5}` {
		t.Errorf("message = %+v", m)
	}

	for _, bad := range []string{`not json`, `{"data":{}}`, `[]`} {
		if _, err := ParseMessage([]byte(bad)); err == nil {
			t.Errorf("ParseMessage(%q) succeeded", bad)
		}
	}
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage("auction_ended", map[string]any{"final_price": 10})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if m.Type != "auction_ended" || string(m.Data) != `{"final_price":10}` {
		t.Errorf("message = %+v %s", m, m.Data)
	}
}
