// Package deposit drives the auction participation deposit: register for an
// auction, then watch the QR payment token until it is paid, rejected or
// expired.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/bidwatch/internal/countdown"
	"github.com/dukerupert/bidwatch/internal/httpclient"
	"github.com/dukerupert/bidwatch/internal/model"
)

var (
	// ErrExpired is the failure reason when the countdown reaches zero.
	ErrExpired = errors.New("payment QR code expired, please create a new one")

	// ErrInvalidToken is the failure reason when the server no longer
	// accepts the payment token.
	ErrInvalidToken = errors.New("payment QR code is invalid or expired")

	ErrPaymentFailed = errors.New("payment failed")
	ErrStarted       = errors.New("deposit flow already started")
)

// API is the subset of the marketplace client the flow needs.
type API interface {
	RegisterParticipation(ctx context.Context, auctionID int64) (*model.DepositRegistration, error)
	PaymentTokenStatus(ctx context.Context, token string) (*model.PaymentTokenStatus, error)
}

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseRegistering Phase = "registering"
	PhasePending     Phase = "pending"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
)

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Update is delivered to listeners on every phase change, countdown tick and
// poll result.
type Update struct {
	Phase        Phase
	Remaining    time.Duration
	Registration *model.DepositRegistration
	Status       *model.PaymentTokenStatus
	Err          error
}

type Config struct {
	Window       time.Duration
	PollInterval time.Duration
	Tick         time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:       5 * time.Minute,
		PollInterval: 5 * time.Second,
		Tick:         time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	return c
}

// Flow is a single deposit attempt. A Flow is started once.
type Flow struct {
	api    API
	cfg    Config
	logger *slog.Logger
	timer  *countdown.Timer
	now    func() time.Time

	// emitMu serializes listener delivery so no update follows the
	// terminal one.
	emitMu sync.Mutex

	mu        sync.Mutex
	phase     Phase
	reg       *model.DepositRegistration
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
	listeners []*listener
}

type listener struct {
	fn func(Update)
}

func New(api API, cfg Config, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		api:    api,
		cfg:    cfg.withDefaults(),
		logger: logger,
		timer:  countdown.New(),
		now:    time.Now,
		phase:  PhaseIdle,
		done:   make(chan struct{}),
	}
}

// OnUpdate registers fn and returns a func that removes it. Listeners run in
// registration order.
func (f *Flow) OnUpdate(fn func(Update)) func() {
	l := &listener{fn: fn}

	f.mu.Lock()
	f.listeners = append(slices.Clip(f.listeners), l)
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if i := slices.Index(f.listeners, l); i >= 0 {
				f.listeners = slices.Delete(slices.Clone(f.listeners), i, i+1)
			}
		})
	}
}

// Start registers for the auction and, on success, starts the countdown and
// the status poll. It returns the registration error, which also ends the
// flow as failed.
func (f *Flow) Start(ctx context.Context, auctionID int64) error {
	f.mu.Lock()
	if f.phase != PhaseIdle {
		f.mu.Unlock()
		return ErrStarted
	}
	f.phase = PhaseRegistering
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel
	f.mu.Unlock()

	f.emit(Update{Phase: PhaseRegistering}, false)

	reg, err := f.api.RegisterParticipation(ctx, auctionID)
	if err != nil {
		f.finish(PhaseFailed, err)
		return fmt.Errorf("start deposit: %w", err)
	}

	window := f.cfg.Window
	if !reg.ExpiresAt.IsZero() {
		if left := reg.ExpiresAt.Sub(f.now()); left > 0 && left < window {
			window = left
		}
	}

	f.mu.Lock()
	if f.phase.Terminal() {
		// Stopped while registering.
		f.mu.Unlock()
		return nil
	}
	f.phase = PhasePending
	f.reg = reg
	f.timer.Start(window, f.cfg.Tick,
		func(remaining time.Duration) {
			f.emit(Update{Phase: PhasePending, Remaining: remaining, Registration: reg}, true)
		},
		func() { f.finish(PhaseFailed, ErrExpired) },
	)
	go f.poll(pollCtx, reg)
	f.mu.Unlock()

	f.logger.Info("deposit pending", "auction_id", auctionID, "amount", reg.Amount, "expires_in", window)
	f.emit(Update{Phase: PhasePending, Remaining: window, Registration: reg}, true)
	return nil
}

func (f *Flow) poll(ctx context.Context, reg *model.DepositRegistration) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := f.api.PaymentTokenStatus(ctx, reg.QRToken)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if httpclient.IsTransport(err) {
				f.logger.Warn("poll payment status", "error", err)
				continue
			}
			f.logger.Error("poll payment status", "error", err)
			f.emit(Update{Phase: PhasePending, Remaining: f.timer.Remaining(), Registration: reg, Err: err}, true)
			continue
		}

		if !st.Valid {
			reason := ErrInvalidToken
			if st.Error != "" {
				f.finish(PhaseFailed, fmt.Errorf("%w: %s", reason, st.Error))
			} else {
				f.finish(PhaseFailed, reason)
			}
			return
		}

		switch strings.ToUpper(st.Status) {
		case model.PaymentStatusCompleted, "PAID":
			f.finish(PhaseCompleted, nil)
			return
		case model.PaymentStatusFailed, "CANCELLED":
			f.finish(PhaseFailed, ErrPaymentFailed)
			return
		}

		if !st.ExpiresAt.IsZero() {
			f.timer.Sync(st.ExpiresAt.Sub(f.now()))
		}
		f.emit(Update{Phase: PhasePending, Remaining: f.timer.Remaining(), Registration: reg, Status: st}, true)
	}
}

// Stop abandons a flow that has not finished; it then reports failed with
// context.Canceled. Stop halts the countdown and the poll, is idempotent and
// may be called from a listener.
func (f *Flow) Stop() {
	f.mu.Lock()
	f.timer.Stop()
	if f.cancel != nil {
		f.cancel()
	}
	if !f.phase.Terminal() {
		f.phase = PhaseFailed
		f.err = context.Canceled
		close(f.done)
	}
	f.mu.Unlock()
}

func (f *Flow) finish(phase Phase, err error) {
	f.emitMu.Lock()
	defer f.emitMu.Unlock()

	f.mu.Lock()
	if f.phase.Terminal() {
		f.mu.Unlock()
		return
	}
	f.phase = phase
	f.err = err
	if f.cancel != nil {
		f.cancel()
	}
	reg := f.reg
	close(f.done)
	f.mu.Unlock()

	f.timer.Stop()

	if err != nil {
		f.logger.Warn("deposit failed", "error", err)
	} else {
		f.logger.Info("deposit completed")
	}
	f.deliver(Update{Phase: phase, Registration: reg, Err: err})
}

// emit delivers u unless the flow has already reached a terminal phase.
func (f *Flow) emit(u Update, pendingOnly bool) {
	f.emitMu.Lock()
	defer f.emitMu.Unlock()

	f.mu.Lock()
	current := f.phase
	f.mu.Unlock()
	if current.Terminal() || (pendingOnly && current != PhasePending) {
		return
	}
	f.deliver(u)
}

func (f *Flow) deliver(u Update) {
	f.mu.Lock()
	snapshot := f.listeners
	f.mu.Unlock()

	for _, l := range snapshot {
		l.fn(u)
	}
}

// Done is closed once the flow is completed, failed or stopped.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Result returns the current phase and, for a failed flow, the reason.
func (f *Flow) Result() (Phase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase, f.err
}

func (f *Flow) Registration() *model.DepositRegistration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reg
}
