package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dukerupert/bidwatch/internal/model"
	"github.com/dukerupert/bidwatch/internal/notify"
	"github.com/dukerupert/bidwatch/internal/realtime"
	"github.com/dukerupert/bidwatch/internal/reconnect"
	"github.com/dukerupert/bidwatch/internal/websocket"
)

func newAuctionsCmd(a *app) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "auctions",
		Short: "List auctions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var auctions []model.Auction
			var err error
			if status != "" {
				if err := a.restore(ctx); err != nil {
					return err
				}
				auctions, err = a.api.AdminAuctions(ctx, status)
			} else {
				auctions, err = a.api.ListAuctions(ctx)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tHIGHEST\tBIDS\tENDS")
			for _, au := range auctions {
				ends := "-"
				if !au.EndTime.IsZero() {
					ends = humanize.Time(au.EndTime.Time)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
					au.ID, au.DisplayName(), au.Status, notify.FormatPrice(au.CurrentHighestBid), au.BidCount, ends)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (admin listing)")
	return cmd
}

func newBidCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bid <auction-id> <price>",
		Short: "Place a bid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			auctionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			price, err := strconv.ParseFloat(args[1], 64)
			if err != nil || price <= 0 {
				return fmt.Errorf("invalid price %q", args[1])
			}
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}

			bid, err := a.api.PlaceBid(cmd.Context(), auctionID, price)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Bid %d placed: %s VND\n", bid.ID, notify.FormatPrice(bid.BidPrice))
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <auction-id>",
		Short: "Follow an auction's bids live until it ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			auctionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.restore(ctx); err != nil {
				return err
			}

			ch := realtime.NewChannel(realtime.Config{
				BaseURL:       a.cfg.BaseURL,
				AutoReconnect: a.cfg.AutoReconnect,
				Reconnect:     reconnect.DefaultPolicy(),
			}, websocket.NewDialer(a.logger), a.logger)
			defer ch.Close()

			tracker, err := ch.Watch(ctx, auctionID, a.tokens.AccessToken(), a.notifier)
			if err != nil {
				return err
			}
			defer tracker.Close()

			feed := newBidFeed(a.out, !a.cfg.AutoReconnect)
			tracker.OnChange(feed.show)
			// Events folded before OnChange only reach the view.
			feed.show(tracker.View())

			select {
			case <-feed.done:
			case <-ctx.Done():
			}
			return nil
		},
	}
}

// bidFeed prints each bid of a watched auction once and closes done when
// the auction ends, or when the socket drops and no redial is coming.
type bidFeed struct {
	out              io.Writer
	stopOnDisconnect bool
	done             chan struct{}

	mu     sync.Mutex
	seen   int
	closed bool
}

func newBidFeed(out io.Writer, stopOnDisconnect bool) *bidFeed {
	return &bidFeed{out: out, stopOnDisconnect: stopOnDisconnect, done: make(chan struct{})}
}

func (f *bidFeed) show(v realtime.AuctionView) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range v.Bids[min(f.seen, len(v.Bids)):] {
		fmt.Fprintf(f.out, "%s  %s VND by %s\n",
			b.BidTimestamp.Format("15:04:05"), notify.FormatPrice(b.BidPrice), b.BidderName)
	}
	f.seen = max(f.seen, len(v.Bids))

	stopped := v.Ended || (v.State == realtime.StateDisconnected && f.stopOnDisconnect)
	if stopped && !f.closed {
		f.closed = true
		close(f.done)
	}
}

func parseID(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return n, nil
}
