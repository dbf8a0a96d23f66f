package model

import "time"

// Session is the token pair issued by /auth/login and /auth/refresh.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	// ExpiresAt is the access token expiry in epoch milliseconds.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// Valid reports whether both tokens are present.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// Expired reports whether the access token is past its expiry. Sessions
// without a known expiry never report expired.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return now.UnixMilli() >= s.ExpiresAt
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
	IsActive  bool   `json:"is_active,omitempty"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}

type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// RegistrationResult is returned by /auth/register. The OTP token must be
// echoed back with the emailed code to activate the account.
type RegistrationResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	OTPToken  string `json:"otp_token,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
	User      *User  `json:"user,omitempty"`
}

type OTPVerification struct {
	Username string `json:"username"`
	OTPCode  string `json:"otp_code"`
	OTPToken string `json:"otp_token"`
}

type OTPStatus struct {
	Valid            bool      `json:"valid"`
	ExpiresAt        Timestamp `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds,omitempty"`
	AttemptsLeft     int       `json:"attempts_left,omitempty"`
}

type Ack struct {
	Success bool   `json:"success"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Succeeded accepts either of the two acknowledgement styles the API uses.
func (a *Ack) Succeeded() bool {
	return a != nil && (a.Success || a.OK)
}
