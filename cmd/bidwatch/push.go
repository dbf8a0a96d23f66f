package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dukerupert/bidwatch/internal/push"
)

func newVAPIDKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for native push notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "BIDWATCH_VAPID_PUBLIC_KEY=%s\n", pub)
			fmt.Fprintf(out, "BIDWATCH_VAPID_PRIVATE_KEY=%s\n", priv)
			return nil
		},
	}
}

func newPushCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Manage the push endpoints native notifications are sent to",
	}

	var endpoint, p256dh, auth, device string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a push subscription, replacing the keys of a known endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := a.pushes.CreateSubscription(endpoint, p256dh, auth, device)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added subscription #%d\n", sub.ID)
			return nil
		},
	}
	add.Flags().StringVar(&endpoint, "endpoint", "", "push service endpoint URL")
	add.Flags().StringVar(&p256dh, "p256dh", "", "subscription p256dh key")
	add.Flags().StringVar(&auth, "auth", "", "subscription auth secret")
	add.Flags().StringVar(&device, "device", "", "device label")
	for _, f := range []string{"endpoint", "p256dh", "auth"} {
		add.MarkFlagRequired(f)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List push subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := a.pushes.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDEVICE\tENDPOINT\tADDED")
			for _, s := range subs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.DeviceName, s.Endpoint, humanize.Time(s.CreatedAt))
			}
			return tw.Flush()
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a push subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.pushes.DeleteSubscription(id)
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}
