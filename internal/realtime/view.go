package realtime

import (
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/bidwatch/internal/model"
)

// TransientWindow is how long a bid received live is flagged as new.
const TransientWindow = 2 * time.Second

// BidRecord is one row of the bid list. Records appended from live updates
// are Synthetic and carry a "temp_" id until the page is reloaded.
type BidRecord struct {
	ID           string
	BidPrice     float64
	BidderName   string
	BidTimestamp model.Timestamp
	Synthetic    bool
	ReceivedAt   time.Time
}

// IsNew reports whether the record arrived live within the transient window.
func (b BidRecord) IsNew(now time.Time) bool {
	return b.Synthetic && now.Sub(b.ReceivedAt) < TransientWindow
}

// AuctionView is the consumer-side state of one auction.
type AuctionView struct {
	Snapshot  *model.Auction
	Bids      []BidRecord
	State     State
	LastError error
	Ended     bool
}

// Clone returns a deep enough copy for a reader on another goroutine.
func (v AuctionView) Clone() AuctionView {
	out := v
	if v.Snapshot != nil {
		snap := *v.Snapshot
		snap.Bids = slices.Clone(v.Snapshot.Bids)
		out.Snapshot = &snap
	}
	out.Bids = slices.Clone(v.Bids)
	return out
}

// Apply folds one event into the view. Bid records are only ever appended.
func (v *AuctionView) Apply(ev Event, now time.Time) {
	switch e := ev.(type) {
	case Connected:
		v.State = StateOpen
		v.LastError = nil

	case Disconnected:
		v.State = StateDisconnected
		v.LastError = e.Err

	case InitialData:
		snap := e.Auction
		v.Snapshot = &snap
		if e.Auction.Bids != nil {
			v.Bids = make([]BidRecord, 0, len(e.Auction.Bids))
			for _, b := range e.Auction.Bids {
				v.Bids = append(v.Bids, BidRecord{
					ID:           strconv.FormatInt(b.ID, 10),
					BidPrice:     b.BidPrice,
					BidderName:   b.BidderName,
					BidTimestamp: b.BidTimestamp,
				})
			}
		}
		v.Ended = e.Auction.Status == model.AuctionStatusEnded

	case BidUpdate:
		snap := v.ensureSnapshot()
		snap.CurrentHighestBid = e.NewHighestBid
		snap.HighestBidderName = e.BidderName()
		if e.TotalBids != nil {
			snap.BidCount = *e.TotalBids
		}
		if e.Extended && !e.NewEndTime.IsZero() {
			snap.EndTime = e.NewEndTime
		}
		v.Bids = append(v.Bids, BidRecord{
			ID:           "temp_" + uuid.NewString(),
			BidPrice:     e.NewHighestBid,
			BidderName:   e.BidderName(),
			BidTimestamp: e.BidTimestamp,
			Synthetic:    true,
			ReceivedAt:   now,
		})

	case Extended:
		if !e.NewEndTime.IsZero() {
			v.ensureSnapshot().EndTime = e.NewEndTime
		}

	case EndingSoon:
		// Advisory; the snapshot is unchanged.

	case Ended:
		v.Ended = true
		snap := v.ensureSnapshot()
		snap.Status = model.AuctionStatusEnded
		if e.Winner != nil {
			w := *e.Winner
			snap.Winner = &w
		}
		if e.FinalPrice != nil {
			p := *e.FinalPrice
			snap.FinalPrice = &p
		}
	}
}

func (v *AuctionView) ensureSnapshot() *model.Auction {
	if v.Snapshot == nil {
		v.Snapshot = &model.Auction{}
	}
	return v.Snapshot
}
