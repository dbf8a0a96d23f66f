package marketplace

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dukerupert/bidwatch/internal/model"
)

func (c *Client) AdminCreateAuction(ctx context.Context, a model.NewAuction) (*model.Auction, error) {
	var out model.Auction
	if err := c.post(ctx, "/admin/auctions", a, &out); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	return &out, nil
}

// AdminAuctions lists auctions, filtered by status when status is not empty.
func (c *Client) AdminAuctions(ctx context.Context, status string) ([]model.Auction, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	raw, err := c.getList(ctx, "/admin/auctions", q)
	if err != nil {
		return nil, fmt.Errorf("list admin auctions: %w", err)
	}
	return decodeList[model.Auction](raw)
}

func (c *Client) AdminDeleteAuction(ctx context.Context, auctionID int64) (*model.Ack, error) {
	var ack model.Ack
	if err := c.post(ctx, "/admin/auctions/"+id(auctionID)+"/delete", nil, &ack); err != nil {
		return nil, fmt.Errorf("delete auction: %w", err)
	}
	return &ack, nil
}

func (c *Client) AdminSetAuctionResult(ctx context.Context, auctionID int64, res model.AuctionResult) (*model.Ack, error) {
	var ack model.Ack
	if err := c.put(ctx, "/admin/auctions/"+id(auctionID)+"/result", res, &ack); err != nil {
		return nil, fmt.Errorf("set auction result: %w", err)
	}
	return &ack, nil
}

func (c *Client) AdminSetPaymentStatus(ctx context.Context, paymentID int64, upd model.StatusUpdate) (*model.Ack, error) {
	var ack model.Ack
	if err := c.put(ctx, "/admin/payments/"+id(paymentID)+"/status", upd, &ack); err != nil {
		return nil, fmt.Errorf("set payment status: %w", err)
	}
	return &ack, nil
}

func (c *Client) AdminSetProductStatus(ctx context.Context, productID int64, upd model.StatusUpdate) (*model.Ack, error) {
	var ack model.Ack
	if err := c.put(ctx, "/admin/products/"+id(productID)+"/status", upd, &ack); err != nil {
		return nil, fmt.Errorf("set product status: %w", err)
	}
	return &ack, nil
}

func (c *Client) AdminPendingProducts(ctx context.Context) ([]model.Product, error) {
	raw, err := c.getList(ctx, "/admin/products/pending", nil)
	if err != nil {
		return nil, fmt.Errorf("list pending products: %w", err)
	}
	return decodeList[model.Product](raw)
}

func (c *Client) AdminApproveProduct(ctx context.Context, productID int64, note string) (*model.Ack, error) {
	var ack model.Ack
	if err := c.post(ctx, "/admin/products/"+id(productID)+"/approve", model.ProductReview{Note: note}, &ack); err != nil {
		return nil, fmt.Errorf("approve product: %w", err)
	}
	return &ack, nil
}

func (c *Client) AdminRejectProduct(ctx context.Context, productID int64, reason string) (*model.Ack, error) {
	var ack model.Ack
	if err := c.post(ctx, "/admin/products/"+id(productID)+"/reject", model.ProductReview{Reason: reason}, &ack); err != nil {
		return nil, fmt.Errorf("reject product: %w", err)
	}
	return &ack, nil
}
