package marketplace

import (
	"context"
	"fmt"

	"github.com/dukerupert/bidwatch/internal/model"
)

func (c *Client) SubmitProduct(ctx context.Context, sub model.ProductSubmission) (*model.Product, error) {
	var p model.Product
	if err := c.post(ctx, "/products/submit", sub, &p); err != nil {
		return nil, fmt.Errorf("submit product: %w", err)
	}
	return &p, nil
}
