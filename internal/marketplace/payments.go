package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dukerupert/bidwatch/internal/httpclient"
	"github.com/dukerupert/bidwatch/internal/model"
)

// Deposit registration failures, classified by response status.
var (
	ErrSessionExpired      = errors.New("session expired, please sign in again")
	ErrForbidden           = errors.New("you are not allowed to join this auction")
	ErrAuctionUnavailable  = errors.New("auction not found or no longer open")
	ErrAlreadyRegistered   = errors.New("already registered for this auction")
	ErrServer              = errors.New("server error, please try again later")
	ErrRegistrationFailed  = errors.New("registration failed")
	ErrMissingPaymentToken = errors.New("registration response carried no payment token")
)

// RegisterParticipation starts the deposit payment for an auction and
// returns the QR payment token.
func (c *Client) RegisterParticipation(ctx context.Context, auctionID int64) (*model.DepositRegistration, error) {
	var reg model.DepositRegistration
	err := c.post(ctx, "/participation/register", map[string]int64{"auction_id": auctionID}, &reg)
	if err != nil {
		return nil, classifyRegistration(err)
	}
	if reg.QRToken == "" {
		return nil, ErrMissingPaymentToken
	}
	if reg.AuctionID == 0 {
		reg.AuctionID = auctionID
	}
	return &reg, nil
}

func classifyRegistration(err error) error {
	status := httpclient.StatusOf(err)
	var kind error
	switch {
	case status == 0:
		return fmt.Errorf("register participation: %w", err)
	case status == http.StatusUnauthorized:
		kind = ErrSessionExpired
	case status == http.StatusForbidden:
		kind = ErrForbidden
	case status == http.StatusNotFound:
		kind = ErrAuctionUnavailable
	case status == http.StatusConflict:
		kind = ErrAlreadyRegistered
	case status >= 500:
		kind = ErrServer
	default:
		kind = ErrRegistrationFailed
	}
	return fmt.Errorf("register participation: %w: %w", kind, err)
}

func (c *Client) PaymentTokenStatus(ctx context.Context, token string) (*model.PaymentTokenStatus, error) {
	var st model.PaymentTokenStatus
	if err := c.get(ctx, "/payments/token/"+token+"/status", nil, &st); err != nil {
		return nil, fmt.Errorf("get payment token status: %w", err)
	}
	return &st, nil
}

func (c *Client) PaymentStatus(ctx context.Context, auctionID int64) (*model.PaymentStatus, error) {
	var st model.PaymentStatus
	if err := c.get(ctx, "/payments/"+id(auctionID)+"/status", nil, &st); err != nil {
		return nil, fmt.Errorf("get payment status: %w", err)
	}
	return &st, nil
}

func (c *Client) Pay(ctx context.Context, auctionID int64, req model.PaymentRequest) (*model.PaymentReceipt, error) {
	var rc model.PaymentReceipt
	if err := c.post(ctx, "/payments/"+id(auctionID)+"/pay", req, &rc); err != nil {
		return nil, fmt.Errorf("pay: %w", err)
	}
	return &rc, nil
}
