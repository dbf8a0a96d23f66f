package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/dukerupert/bidwatch/internal/notifications"
	"github.com/dukerupert/bidwatch/internal/notify"
	"github.com/dukerupert/bidwatch/internal/reconnect"
	"github.com/dukerupert/bidwatch/internal/websocket"
)

func newNotificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Stream account notifications until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.restore(ctx); err != nil {
				return err
			}

			ch := notifications.New(notifications.Config{
				BaseURL:       a.cfg.BaseURL,
				AutoReconnect: a.cfg.AutoReconnect,
				Reconnect:     reconnect.DefaultPolicy(),
			}, websocket.NewDialer(a.logger), &http.Client{}, a.notifier, a.logger)
			defer ch.Close()

			ch.On(notifications.EventConnected, func(ev notifications.Event) {
				fmt.Fprintf(a.out, "connected (%s)\n", ev.(notifications.Connected).Transport)
			})
			ch.On(notifications.EventDisconnected, func(ev notifications.Event) {
				d := ev.(notifications.Disconnected)
				fmt.Fprintf(a.out, "disconnected (%s)\n", d.Transport)
			})
			ch.On(notifications.EventUnreadCount, func(ev notifications.Event) {
				fmt.Fprintf(a.out, "unread: %d\n", ev.(notifications.UnreadCount).Count)
			})
			ch.On(notifications.EventNotification, func(ev notifications.Event) {
				n := ev.(notifications.Inbox).Notification
				fmt.Fprintf(a.out, "#%d %s: %s\n", n.ID, n.Title, n.Message)
			})
			ch.On(notifications.EventBidUpdate, func(ev notifications.Event) {
				u := ev.(notifications.BidUpdate)
				fmt.Fprintf(a.out, "new bid in %s: %s VND\n", u.AuctionName, notify.FormatPrice(u.NewBidPrice))
			})

			if err := ch.Connect(ctx, a.tokens.AccessToken()); err != nil {
				if !ch.WSConnected() && !ch.SSEConnected() {
					return err
				}
				a.logger.Warn("notification transport unavailable", "error", err)
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.AddCommand(newUnreadCmd(a), newMarkReadCmd(a))
	return cmd
}

func newUnreadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Print the unread notification count",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			n, err := a.api.UnreadCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, n)
			return nil
		},
	}
}

func newMarkReadCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "read [notification-id]",
		Short: "Mark one notification, or all with --all, as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !all && len(args) == 0 {
				return fmt.Errorf("give a notification id or --all")
			}
			if err := a.restore(ctx); err != nil {
				return err
			}
			if all {
				return a.api.MarkAllRead(ctx)
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.api.MarkRead(ctx, id)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "mark every notification as read")
	return cmd
}
