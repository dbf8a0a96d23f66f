package notifications

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukerupert/bidwatch/internal/model"
)

type EventType string

const (
	EventConnected       EventType = "connection_established"
	EventDisconnected    EventType = "disconnected"
	EventUnreadCount     EventType = "unread_count"
	EventOutbid          EventType = "bid_outbid"
	EventBidUpdate       EventType = "bid_update"
	EventEndingSoon      EventType = "auction_ending_soon"
	EventAuctionEnded    EventType = "auction_ended"
	EventWon             EventType = "auction_won"
	EventPaymentRequired EventType = "payment_required"
	EventNotification    EventType = "notification"
	EventUnknown         EventType = "unknown"
)

type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
)

type Event interface {
	Kind() EventType
}

type Connected struct {
	Transport Transport
}

type Disconnected struct {
	Transport Transport
	Err       error
}

type UnreadCount struct {
	Count int `json:"count"`
}

// AuctionEvent is the payload shared by the auction-scoped account events.
type AuctionEvent struct {
	AuctionID   int64    `json:"auction_id,omitempty"`
	AuctionName string   `json:"auction_name,omitempty"`
	NewBidPrice float64  `json:"new_bid_price,omitempty"`
	FinalPrice  *float64 `json:"final_price,omitempty"`
	Amount      float64  `json:"amount,omitempty"`
}

func (a AuctionEvent) name() string {
	if a.AuctionName != "" {
		return a.AuctionName
	}
	if a.AuctionID != 0 {
		return fmt.Sprintf("auction #%d", a.AuctionID)
	}
	return "an auction"
}

type Outbid struct{ AuctionEvent }
type BidUpdate struct{ AuctionEvent }
type EndingSoon struct{ AuctionEvent }
type AuctionEnded struct{ AuctionEvent }
type Won struct{ AuctionEvent }
type PaymentRequired struct{ AuctionEvent }

// Inbox is a stored notification pushed over the event stream.
type Inbox struct {
	Notification model.Notification
}

type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Connected) Kind() EventType       { return EventConnected }
func (Disconnected) Kind() EventType    { return EventDisconnected }
func (UnreadCount) Kind() EventType     { return EventUnreadCount }
func (Outbid) Kind() EventType          { return EventOutbid }
func (BidUpdate) Kind() EventType       { return EventBidUpdate }
func (EndingSoon) Kind() EventType      { return EventEndingSoon }
func (AuctionEnded) Kind() EventType    { return EventAuctionEnded }
func (Won) Kind() EventType             { return EventWon }
func (PaymentRequired) Kind() EventType { return EventPaymentRequired }
func (Inbox) Kind() EventType           { return EventNotification }
func (Unknown) Kind() EventType         { return EventUnknown }

// errHeartbeat marks keep-alive messages, which are consumed silently.
var errHeartbeat = errors.New("heartbeat")

// decode maps a message type and payload to an event. raw is kept for
// unknown types.
func decode(typ string, data, raw json.RawMessage, transport Transport) (Event, error) {
	var (
		ev  Event
		err error
	)
	auction := func() AuctionEvent {
		var a AuctionEvent
		err = unmarshal(typ, data, &a)
		return a
	}

	switch typ {
	case "heartbeat":
		return nil, errHeartbeat
	case "connection_established", "connected":
		ev = Connected{Transport: transport}
	case "unread_count":
		var u UnreadCount
		err = unmarshal(typ, data, &u)
		ev = u
	case "bid_outbid", "outbid":
		ev = Outbid{auction()}
	case "bid_update":
		ev = BidUpdate{auction()}
	case "auction_ending_soon", "ending_soon":
		ev = EndingSoon{auction()}
	case "auction_ended", "ended":
		ev = AuctionEnded{auction()}
	case "auction_won", "won":
		ev = Won{auction()}
	case "payment_required":
		ev = PaymentRequired{auction()}
	case "notification":
		var n model.Notification
		err = unmarshal(typ, data, &n)
		ev = Inbox{Notification: n}
	default:
		ev = Unknown{Type: typ, Raw: append(json.RawMessage(nil), raw...)}
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func unmarshal(typ string, data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", typ, err)
	}
	return nil
}
