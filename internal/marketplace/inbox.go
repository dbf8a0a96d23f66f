package marketplace

import (
	"context"
	"fmt"

	"github.com/dukerupert/bidwatch/internal/model"
)

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var uc model.UnreadCount
	if err := c.get(ctx, "/notifications/unread/count", nil, &uc); err != nil {
		return 0, fmt.Errorf("get unread count: %w", err)
	}
	return uc.Count, nil
}

func (c *Client) MarkRead(ctx context.Context, notificationID int64) error {
	if err := c.put(ctx, "/notifications/"+id(notificationID)+"/read", nil, nil); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.put(ctx, "/notifications/mark-all-read", nil, nil); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
