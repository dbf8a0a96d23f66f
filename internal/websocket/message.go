package websocket

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Message is the {type, data} envelope every socket message arrives in.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewMessage(typ string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Message{Type: typ, Data: raw}, nil
}

func ParseMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("parse message: missing type")
	}
	return m, nil
}

// ToWebSocketURL maps an http(s) base URL to ws(s) and appends the escaped
// path segments.
func ToWebSocketURL(base string, segments ...string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	for _, s := range segments {
		u += "/" + url.PathEscape(s)
	}
	return u
}
