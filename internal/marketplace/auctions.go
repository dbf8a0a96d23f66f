package marketplace

import (
	"context"
	"fmt"

	"github.com/dukerupert/bidwatch/internal/model"
)

func (c *Client) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	raw, err := c.getList(ctx, "/auctions", nil)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return decodeList[model.Auction](raw)
}

func (c *Client) GetAuction(ctx context.Context, auctionID int64) (*model.Auction, error) {
	var a model.Auction
	if err := c.get(ctx, "/auctions/"+id(auctionID), nil, &a); err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return &a, nil
}

// PlaceBid submits a bid. Business-rule rejections come back as
// *httpclient.HTTPError with the server's reason in Message().
func (c *Client) PlaceBid(ctx context.Context, auctionID int64, price float64) (*model.Bid, error) {
	var b model.Bid
	req := model.BidRequest{AuctionID: auctionID, BidPrice: price}
	if err := c.post(ctx, "/bids/place", req, &b); err != nil {
		return nil, fmt.Errorf("place bid: %w", err)
	}
	return &b, nil
}

func (c *Client) CancelBid(ctx context.Context, bidID int64) (*model.Ack, error) {
	var ack model.Ack
	if err := c.post(ctx, "/bids/"+id(bidID)+"/cancel", nil, &ack); err != nil {
		return nil, fmt.Errorf("cancel bid: %w", err)
	}
	return &ack, nil
}

func (c *Client) MyBiddingStatus(ctx context.Context, auctionID int64) (*model.BiddingStatus, error) {
	var st model.BiddingStatus
	if err := c.post(ctx, "/bids/auction/"+id(auctionID)+"/my-status", nil, &st); err != nil {
		return nil, fmt.Errorf("get bidding status: %w", err)
	}
	return &st, nil
}

func (c *Client) HighestBid(ctx context.Context, auctionID int64) (*model.Bid, error) {
	var b model.Bid
	if err := c.get(ctx, "/bids/auction/"+id(auctionID)+"/highest", nil, &b); err != nil {
		return nil, fmt.Errorf("get highest bid: %w", err)
	}
	return &b, nil
}

func (c *Client) AuctionBids(ctx context.Context, auctionID int64) ([]model.Bid, error) {
	raw, err := c.getList(ctx, "/bids/auction/"+id(auctionID), nil)
	if err != nil {
		return nil, fmt.Errorf("list auction bids: %w", err)
	}
	return decodeList[model.Bid](raw)
}

func (c *Client) MyBids(ctx context.Context) ([]model.Bid, error) {
	raw, err := c.getList(ctx, "/me/bids", nil)
	if err != nil {
		return nil, fmt.Errorf("list my bids: %w", err)
	}
	return decodeList[model.Bid](raw)
}

func (c *Client) PostAuctionStatus(ctx context.Context, auctionID int64) (*model.PostAuctionStatus, error) {
	var st model.PostAuctionStatus
	if err := c.get(ctx, "/auctions/"+id(auctionID)+"/status", nil, &st); err != nil {
		return nil, fmt.Errorf("get post-auction status: %w", err)
	}
	return &st, nil
}

func (c *Client) RegisterForAuction(ctx context.Context, auctionID int64) (*model.Ack, error) {
	var ack model.Ack
	if err := c.post(ctx, "/auctions/"+id(auctionID)+"/register", nil, &ack); err != nil {
		return nil, fmt.Errorf("register for auction: %w", err)
	}
	return &ack, nil
}

func (c *Client) CancelAuctionRegistration(ctx context.Context, auctionID int64) (*model.Ack, error) {
	var ack model.Ack
	if err := c.post(ctx, "/auctions/"+id(auctionID)+"/register/cancel", nil, &ack); err != nil {
		return nil, fmt.Errorf("cancel auction registration: %w", err)
	}
	return &ack, nil
}
