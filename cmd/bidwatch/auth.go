package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/bidwatch/internal/countdown"
	"github.com/dukerupert/bidwatch/internal/model"
)

func newLoginCmd(a *app) *cobra.Command {
	var creds model.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Password == "" {
				pw, err := prompt(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
				creds.Password = pw
			}
			if _, err := a.session.SignIn(cmd.Context(), creds); err != nil {
				return err
			}
			u := a.session.User()
			fmt.Fprintf(a.out, "Signed in as %s\n", u.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password (prompted when omitted)")
	cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.session.SignOut(cmd.Context())
			fmt.Fprintln(a.out, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			u := a.session.User()
			fmt.Fprintf(a.out, "%s <%s>", u.Username, u.Email)
			if u.IsAdmin() {
				fmt.Fprint(a.out, " (admin)")
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var reg model.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account; a one-time code is emailed for verify-otp",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.api.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			if res.Message != "" {
				fmt.Fprintln(a.out, res.Message)
			}
			if res.OTPToken != "" {
				fmt.Fprintf(a.out, "Verify with: bidwatch verify-otp --username %s --token %s\n", reg.Username, res.OTPToken)
			}
			if res.ExpiresIn > 0 {
				fmt.Fprintf(a.out, "The code expires in %s\n", countdown.Format(time.Duration(res.ExpiresIn)*time.Second))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Username, "username", "", "username")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	for _, f := range []string{"username", "email", "password"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

var errOTPExpired = errors.New("verification code expired, run register again or resend the code")

func newVerifyOTPCmd(a *app) *cobra.Command {
	var v model.OTPVerification
	var resend bool

	cmd := &cobra.Command{
		Use:   "verify-otp",
		Short: "Activate a new account with the emailed code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if resend {
				res, err := a.api.ResendOTP(ctx, v.OTPToken)
				if err != nil {
					return err
				}
				if res.OTPToken != "" {
					v.OTPToken = res.OTPToken
				}
				fmt.Fprintln(a.out, "A new code has been sent")
			}

			st, err := a.api.OTPStatus(ctx, v.OTPToken)
			if err != nil {
				return err
			}
			if !st.Valid {
				return errOTPExpired
			}

			if v.OTPCode == "" {
				code, err := promptBeforeExpiry(ctx, cmd, otpRemaining(st))
				if err != nil {
					return err
				}
				v.OTPCode = code
			}

			ack, err := a.api.VerifyOTP(ctx, v)
			if err != nil {
				return err
			}
			if !ack.Succeeded() {
				return fmt.Errorf("verification rejected: %s", ack.Message)
			}
			fmt.Fprintln(a.out, "Account verified, you can now log in")
			return nil
		},
	}
	cmd.Flags().StringVar(&v.Username, "username", "", "username used at registration")
	cmd.Flags().StringVar(&v.OTPToken, "token", "", "OTP token printed by register")
	cmd.Flags().StringVar(&v.OTPCode, "code", "", "emailed code (prompted when omitted)")
	cmd.Flags().BoolVar(&resend, "resend", false, "email a fresh code first")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("token")
	return cmd
}

func otpRemaining(st *model.OTPStatus) time.Duration {
	if st.RemainingSeconds > 0 {
		return time.Duration(st.RemainingSeconds) * time.Second
	}
	if !st.ExpiresAt.IsZero() {
		return time.Until(st.ExpiresAt.Time)
	}
	return 5 * time.Minute
}

// promptBeforeExpiry reads the code while a countdown runs; the prompt is
// abandoned when the code expires.
func promptBeforeExpiry(ctx context.Context, cmd *cobra.Command, remaining time.Duration) (string, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	timer := countdown.New()
	timer.Start(remaining, time.Second, nil, func() { cancel(errOTPExpired) })
	defer timer.Stop()

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := prompt(cmd.InOrStdin(), cmd.ErrOrStderr(),
			fmt.Sprintf("Code (expires in %s): ", countdown.Format(remaining)))
		done <- result{code, err}
	}()

	select {
	case r := <-done:
		return r.code, r.err
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
