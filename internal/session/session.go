// Package session tracks who is signed in. It owns the login, refresh and
// logout lifecycle on top of the token store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/bidwatch/internal/logging"
	"github.com/dukerupert/bidwatch/internal/model"
	"github.com/dukerupert/bidwatch/internal/tokenstore"
)

var (
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrNoSession      = errors.New("not signed in")
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateAuthed  State = "authed"
)

// AuthAPI is the subset of the marketplace API the controller drives.
type AuthAPI interface {
	Login(ctx context.Context, creds model.Credentials) (*model.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
	Me(ctx context.Context) (*model.User, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Listener observes state transitions. user is non-nil only when state is
// StateAuthed.
type Listener func(state State, user *model.User)

type subscriber struct {
	fn Listener
}

type Controller struct {
	api    AuthAPI
	tokens *tokenstore.Store
	logger *slog.Logger
	now    func() time.Time

	refreshes singleflight.Group

	mu    sync.Mutex
	state State
	user  *model.User
	subs  []*subscriber

	stopWatch func()
}

func New(api AuthAPI, tokens *tokenstore.Store, logger *slog.Logger) *Controller {
	c := &Controller{
		api:    api,
		tokens: tokens,
		logger: logging.Or(logger),
		now:    time.Now,
		state:  StateIdle,
	}
	c.stopWatch = tokens.Subscribe(func(s *model.Session) {
		if s == nil {
			c.setState(StateIdle, nil)
		}
	})
	return c
}

// Close detaches the controller from the token store.
func (c *Controller) Close() {
	c.stopWatch()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) User() *model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Subscribe registers fn for state transitions and returns a function that
// removes it.
func (c *Controller) Subscribe(fn Listener) func() {
	sub := &subscriber{fn: fn}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s == sub {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Controller) setState(state State, user *model.User) {
	if state != StateAuthed {
		user = nil
	}

	c.mu.Lock()
	if c.state == state && c.user == user {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.user = user
	subs := c.subs
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(state, user)
	}
}

// SignIn exchanges credentials for a session and loads the profile.
func (c *Controller) SignIn(ctx context.Context, creds model.Credentials) (*model.Session, error) {
	c.setState(StateLoading, nil)

	s, err := c.api.Login(ctx, creds)
	if err != nil {
		c.setState(StateIdle, nil)
		return nil, fmt.Errorf("sign in: %w", err)
	}
	c.stampExpiry(s)
	c.tokens.Set(s)
	if !s.Valid() {
		c.setState(StateIdle, nil)
		return nil, fmt.Errorf("sign in: %w", ErrNoSession)
	}

	if err := c.loadProfile(ctx); err != nil {
		return s.Clone(), fmt.Errorf("sign in: %w", err)
	}
	c.logger.Info("signed in", "username", creds.Username)
	return s.Clone(), nil
}

// SignOut clears the local session immediately, then tells the server.
// A failed server call never leaves the session in place.
func (c *Controller) SignOut(ctx context.Context) {
	refreshToken := c.tokens.RefreshToken()
	c.tokens.Clear()
	c.setState(StateIdle, nil)

	if refreshToken == "" {
		return
	}
	if err := c.api.Logout(ctx, refreshToken); err != nil {
		c.logger.Debug("server logout failed", "error", err)
	}
}

// Restore resumes a persisted session: a silent refresh followed by a
// profile load. With no stored session it stays idle.
func (c *Controller) Restore(ctx context.Context) error {
	if c.tokens.Get() == nil {
		c.setState(StateIdle, nil)
		return nil
	}
	c.setState(StateLoading, nil)

	if err := c.Refresh(ctx); err != nil {
		c.logger.Debug("silent refresh failed", "error", err)
	}
	if c.tokens.Get() == nil {
		c.setState(StateIdle, nil)
		return ErrNoSession
	}
	return c.loadProfile(ctx)
}

func (c *Controller) loadProfile(ctx context.Context) error {
	c.setState(StateLoading, nil)
	u, err := c.api.Me(ctx)
	if err != nil || u == nil {
		c.setState(StateIdle, nil)
		if err == nil {
			err = errors.New("empty profile")
		}
		return fmt.Errorf("load profile: %w", err)
	}
	c.setState(StateAuthed, u)
	return nil
}

// Refresh trades the stored refresh token for a new session. Concurrent
// callers share one request.
func (c *Controller) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Controller) refresh(ctx context.Context) error {
	current := c.tokens.Get()
	if current == nil || current.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	s, err := c.api.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if s.RefreshToken == "" {
		s.RefreshToken = current.RefreshToken
	}
	c.stampExpiry(s)
	c.tokens.Set(s)
	c.logger.Debug("session refreshed", "expires_at", s.ExpiresAt)
	return nil
}

// AccessToken is a token source for the HTTP client.
func (c *Controller) AccessToken(context.Context) string {
	return c.tokens.AccessToken()
}

// stampExpiry fills ExpiresAt from expires_in, falling back to the access
// token's exp claim. The token is not verified; only the server can.
func (c *Controller) stampExpiry(s *model.Session) {
	if s == nil || s.ExpiresAt != 0 {
		return
	}
	if s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second).UnixMilli()
		return
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err != nil {
		return
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.UnixMilli()
	}
}
