package model

// Auction status values.
const (
	AuctionStatusDraft      = "DRAFT"
	AuctionStatusRegistered = "REGISTERED"
	AuctionStatusOpen       = "OPEN"
	AuctionStatusEnded      = "ended"
)

type Bidder struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// Auction is both the REST representation and the real-time snapshot
// delivered as initial data on the auction socket.
type Auction struct {
	ID                int64     `json:"id"`
	Name              string    `json:"auction_name,omitempty"`
	Title             string    `json:"title,omitempty"`
	Status            string    `json:"auction_status,omitempty"`
	StartingPrice     float64   `json:"starting_price,omitempty"`
	StepPrice         float64   `json:"step_price,omitempty"`
	DepositAmount     float64   `json:"deposit_amount,omitempty"`
	CurrentHighestBid float64   `json:"current_highest_bid"`
	HighestBidderName string    `json:"highest_bidder_name,omitempty"`
	BidCount          int       `json:"bid_count"`
	StartTime         Timestamp `json:"start_time"`
	EndTime           Timestamp `json:"end_time"`
	Winner            *Bidder   `json:"winner,omitempty"`
	FinalPrice        *float64  `json:"final_price,omitempty"`
	Bids              []Bid     `json:"bids,omitempty"`
}

// DisplayName prefers the auction name and falls back to the title.
func (a *Auction) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Title
}

type Bid struct {
	ID           int64     `json:"id"`
	AuctionID    int64     `json:"auction_id,omitempty"`
	BidPrice     float64   `json:"bid_price"`
	BidderName   string    `json:"bidder_name,omitempty"`
	BidTimestamp Timestamp `json:"bid_timestamp"`
	Status       string    `json:"status,omitempty"`
}

type BidRequest struct {
	AuctionID int64   `json:"auction_id"`
	BidPrice  float64 `json:"bid_price"`
}

type BiddingStatus struct {
	AuctionID       int64   `json:"auction_id"`
	CanBid          bool    `json:"can_bid"`
	IsRegistered    bool    `json:"is_registered"`
	DepositPaid     bool    `json:"deposit_paid"`
	MyHighestBid    float64 `json:"my_highest_bid,omitempty"`
	IsHighestBidder bool    `json:"is_highest_bidder,omitempty"`
	Message         string  `json:"message,omitempty"`
}

// PostAuctionStatus is the winner's view of payment and shipping after close.
type PostAuctionStatus struct {
	AuctionID int64 `json:"auction_id"`
	Payment   struct {
		Status      string    `json:"status"`
		Method      string    `json:"method,omitempty"`
		RequestedAt Timestamp `json:"requested_at"`
	} `json:"payment"`
	Product struct {
		ShippingStatus  string `json:"shipping_status"`
		ReceivingMethod string `json:"receiving_method,omitempty"`
	} `json:"product"`
}

type AuctionResult struct {
	WinnerID   int64   `json:"winner_id,omitempty"`
	FinalPrice float64 `json:"final_price,omitempty"`
	Status     string  `json:"status"`
	Note       string  `json:"note,omitempty"`
}

type NewAuction struct {
	Name          string    `json:"auction_name"`
	ProductID     int64     `json:"product_id"`
	StartTime     Timestamp `json:"start_time"`
	EndTime       Timestamp `json:"end_time"`
	StartingPrice float64   `json:"starting_price"`
	StepPrice     float64   `json:"step_price"`
	DepositAmount float64   `json:"deposit_amount,omitempty"`
}
