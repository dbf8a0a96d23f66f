package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/dukerupert/bidwatch/internal/model"
	"github.com/dukerupert/bidwatch/internal/websocket"
)

type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventInitialData  EventType = "initial_data"
	EventBidUpdate    EventType = "bid_update"
	EventExtended     EventType = "extended"
	EventEndingSoon   EventType = "ending_soon"
	EventEnded        EventType = "ended"
	EventUnknown      EventType = "unknown"
)

// Event is one message delivered to listeners of an auction.
type Event interface {
	Kind() EventType
}

type Connected struct{}

// Disconnected is delivered when the socket fails to open or closes for any
// reason other than an explicit Disconnect.
type Disconnected struct {
	Err error
}

// InitialData is the full auction state, sent once after the socket opens.
type InitialData struct {
	Auction model.Auction
}

type BidUpdate struct {
	NewHighestBid    float64         `json:"new_highest_bid"`
	NewHighestBidder *model.Bidder   `json:"new_highest_bidder,omitempty"`
	TotalBids        *int            `json:"total_bids,omitempty"`
	BidTimestamp     model.Timestamp `json:"bid_timestamp"`
	Extended         bool            `json:"extended,omitempty"`
	NewEndTime       model.Timestamp `json:"new_end_time"`
}

// BidderName returns the display name of the new highest bidder.
func (b BidUpdate) BidderName() string {
	if b.NewHighestBidder == nil || b.NewHighestBidder.Name == "" {
		return "Anonymous"
	}
	return b.NewHighestBidder.Name
}

type Extended struct {
	NewEndTime       model.Timestamp `json:"new_end_time"`
	ExtensionMinutes int             `json:"extension_minutes,omitempty"`
}

type EndingSoon struct {
	AuctionName      string `json:"auction_name,omitempty"`
	SecondsRemaining int    `json:"seconds_remaining,omitempty"`
}

type Ended struct {
	Winner     *model.Bidder `json:"winner,omitempty"`
	FinalPrice *float64      `json:"final_price,omitempty"`
}

// Unknown carries a message whose type is not part of the auction
// vocabulary. Raw is the whole envelope.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Connected) Kind() EventType    { return EventConnected }
func (Disconnected) Kind() EventType { return EventDisconnected }
func (InitialData) Kind() EventType  { return EventInitialData }
func (BidUpdate) Kind() EventType    { return EventBidUpdate }
func (Extended) Kind() EventType     { return EventExtended }
func (EndingSoon) Kind() EventType   { return EventEndingSoon }
func (Ended) Kind() EventType        { return EventEnded }
func (Unknown) Kind() EventType      { return EventUnknown }

// decodeEvent maps an inbound envelope to a typed event. The server uses
// both prefixed and bare type names.
func decodeEvent(raw []byte) (Event, error) {
	msg, err := websocket.ParseMessage(raw)
	if err != nil {
		return nil, err
	}

	var ev Event
	switch msg.Type {
	case "auction_initial_data", "initial_data":
		var d InitialData
		err = unmarshalData(msg, &d.Auction)
		ev = d
	case "bid_update":
		var d BidUpdate
		err = unmarshalData(msg, &d)
		ev = d
	case "auction_extended", "extended":
		var d Extended
		err = unmarshalData(msg, &d)
		ev = d
	case "auction_ending_soon", "ending_soon":
		var d EndingSoon
		err = unmarshalData(msg, &d)
		ev = d
	case "auction_ended", "ended":
		var d Ended
		err = unmarshalData(msg, &d)
		ev = d
	default:
		ev = Unknown{Type: msg.Type, Raw: append(json.RawMessage(nil), raw...)}
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func unmarshalData(msg websocket.Message, v any) error {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	return nil
}
