package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/bidwatch/internal/countdown"
	"github.com/dukerupert/bidwatch/internal/deposit"
	"github.com/dukerupert/bidwatch/internal/httpclient"
	"github.com/dukerupert/bidwatch/internal/notify"
)

func newDepositCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <auction-id>",
		Short: "Register for an auction and wait for the deposit payment",
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

			flow := deposit.New(a.api, deposit.DefaultConfig(), a.logger)
			var lastShown string
			flow.OnUpdate(func(u deposit.Update) {
				switch u.Phase {
				case deposit.PhasePending:
					if u.Status == nil && u.Err == nil && u.Registration != nil && lastShown == "" {
						reg := u.Registration
						fmt.Fprintf(a.out, "Deposit of %s VND required", notify.FormatPrice(reg.Amount))
						if reg.BankName != "" {
							fmt.Fprintf(a.out, " via %s", reg.BankName)
						}
						fmt.Fprintf(a.out, "\nPayment token: %s\n", reg.QRToken)
					}
					if u.Err != nil {
						fmt.Fprintf(a.out, "could not check payment status: %s\n", httpclient.UserMessage(u.Err))
					}
					// Report once a minute rather than every tick.
					if shown := countdown.Format(u.Remaining.Truncate(time.Minute)); shown != lastShown {
						lastShown = shown
						fmt.Fprintf(a.out, "waiting for payment, %s left\n", countdown.Format(u.Remaining))
					}
				case deposit.PhaseCompleted:
					a.notifier.Show(notify.Notice{Level: notify.LevelSuccess, Message: "Deposit received, you can now bid"})
				}
			})

			if err := flow.Start(ctx, auctionID); err != nil {
				return err
			}

			select {
			case <-flow.Done():
			case <-ctx.Done():
				flow.Stop()
			}

			phase, err := flow.Result()
			if phase == deposit.PhaseCompleted || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
