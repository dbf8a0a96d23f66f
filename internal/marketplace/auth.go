package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dukerupert/bidwatch/internal/httpclient"
	"github.com/dukerupert/bidwatch/internal/model"
)

// Login exchanges credentials for a session. It never triggers the
// refresh-and-replay path.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.Session, error) {
	var s model.Session
	err := c.call(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    "/auth/login",
		Body:    creds,
		NoRetry: true,
	}, &s)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &s, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	var s model.Session
	err := c.call(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    "/auth/refresh",
		Body:    map[string]string{"refresh_token": refreshToken},
		NoRetry: true,
	}, &s)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	return &s, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	err := c.call(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    "/auth/logout",
		Body:    map[string]string{"refresh_token": refreshToken},
		NoRetry: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.get(ctx, "/auth/me", nil, &u); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &u, nil
}

func (c *Client) Register(ctx context.Context, reg model.Registration) (*model.RegistrationResult, error) {
	var res model.RegistrationResult
	err := c.call(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    "/auth/register",
		Body:    reg,
		NoRetry: true,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &res, nil
}

func (c *Client) OTPStatus(ctx context.Context, otpToken string) (*model.OTPStatus, error) {
	var st model.OTPStatus
	if err := c.get(ctx, "/auth/otp/status", url.Values{"otp_token": {otpToken}}, &st); err != nil {
		return nil, fmt.Errorf("get otp status: %w", err)
	}
	return &st, nil
}

func (c *Client) VerifyOTP(ctx context.Context, v model.OTPVerification) (*model.Ack, error) {
	var ack model.Ack
	if err := c.post(ctx, "/auth/register/verify", v, &ack); err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	return &ack, nil
}

func (c *Client) ResendOTP(ctx context.Context, otpToken string) (*model.RegistrationResult, error) {
	var res model.RegistrationResult
	if err := c.post(ctx, "/auth/otp/resend", map[string]string{"otp_token": otpToken}, &res); err != nil {
		return nil, fmt.Errorf("resend otp: %w", err)
	}
	return &res, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) (*model.Ack, error) {
	var ack model.Ack
	if err := c.post(ctx, "/auth/reset/request", map[string]string{"email": email}, &ack); err != nil {
		return nil, fmt.Errorf("request password reset: %w", err)
	}
	return &ack, nil
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (*model.Ack, error) {
	var ack model.Ack
	body := map[string]string{"token": token, "new_password": newPassword}
	if err := c.post(ctx, "/auth/reset/confirm", body, &ack); err != nil {
		return nil, fmt.Errorf("confirm password reset: %w", err)
	}
	return &ack, nil
}
