package deposit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/bidwatch/internal/httpclient"
	"github.com/dukerupert/bidwatch/internal/model"
)

type fakeAPI struct {
	regErr error
	reg    *model.DepositRegistration

	mu       sync.Mutex
	statuses []statusReply
	polls    int
}

type statusReply struct {
	st  *model.PaymentTokenStatus
	err error
}

func (f *fakeAPI) RegisterParticipation(ctx context.Context, auctionID int64) (*model.DepositRegistration, error) {
	if f.regErr != nil {
		return nil, f.regErr
	}
	if f.reg != nil {
		return f.reg, nil
	}
	return &model.DepositRegistration{AuctionID: auctionID, Amount: 500000, QRToken: "qr-1"}, nil
}

// PaymentTokenStatus replays the queued replies, repeating the last one.
func (f *fakeAPI) PaymentTokenStatus(ctx context.Context, token string) (*model.PaymentTokenStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statuses) == 0 {
		return &model.PaymentTokenStatus{Valid: true, Status: model.PaymentStatusRequested}, nil
	}
	r := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return r.st, r.err
}

func (f *fakeAPI) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{Window: time.Second, PollInterval: 10 * time.Millisecond, Tick: 10 * time.Millisecond}
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) add(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func waitDone(t *testing.T, f *Flow) {
	t.Helper()
	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("flow did not finish")
	}
}

func TestFlow_Completes(t *testing.T) {
	api := &fakeAPI{statuses: []statusReply{
		{st: &model.PaymentTokenStatus{Valid: true, Status: "REQUESTED"}},
		{st: &model.PaymentTokenStatus{Valid: true, Status: "COMPLETED"}},
	}}
	f := New(api, fastConfig(), testLogger())
	rec := &recorder{}
	f.OnUpdate(rec.add)

	if err := f.Start(context.Background(), 7); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, f)

	phase, err := f.Result()
	if phase != PhaseCompleted || err != nil {
		t.Fatalf("Result = %s, %v", phase, err)
	}
	if f.Registration().QRToken != "qr-1" {
		t.Errorf("registration = %+v", f.Registration())
	}

	updates := rec.all()
	if updates[0].Phase != PhaseRegistering {
		t.Errorf("first update = %s", updates[0].Phase)
	}
	if last := updates[len(updates)-1]; last.Phase != PhaseCompleted {
		t.Errorf("last update = %s", last.Phase)
	}

	// Nothing more is delivered after the terminal update.
	n := len(rec.all())
	time.Sleep(50 * time.Millisecond)
	if len(rec.all()) != n {
		t.Error("updates after completion")
	}
}

func TestFlow_RegistrationError(t *testing.T) {
	regErr := errors.New("boom")
	f := New(&fakeAPI{regErr: regErr}, fastConfig(), testLogger())

	err := f.Start(context.Background(), 7)
	if !errors.Is(err, regErr) {
		t.Fatalf("Start error = %v", err)
	}
	waitDone(t, f)
	if phase, got := f.Result(); phase != PhaseFailed || !errors.Is(got, regErr) {
		t.Errorf("Result = %s, %v", phase, got)
	}
}

func TestFlow_StartTwice(t *testing.T) {
	f := New(&fakeAPI{}, fastConfig(), testLogger())
	defer f.Stop()
	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := f.Start(context.Background(), 1); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start = %v, want ErrStarted", err)
	}
}

func TestFlow_InvalidToken(t *testing.T) {
	api := &fakeAPI{statuses: []statusReply{
		{st: &model.PaymentTokenStatus{Valid: false, Error: "token revoked"}},
	}}
	f := New(api, fastConfig(), testLogger())
	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f)

	phase, err := f.Result()
	if phase != PhaseFailed || !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Result = %s, %v", phase, err)
	}
}

func TestFlow_PaymentFailed(t *testing.T) {
	api := &fakeAPI{statuses: []statusReply{
		{st: &model.PaymentTokenStatus{Valid: true, Status: "cancelled"}},
	}}
	f := New(api, fastConfig(), testLogger())
	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f)
	if _, err := f.Result(); !errors.Is(err, ErrPaymentFailed) {
		t.Errorf("Result error = %v", err)
	}
}

func TestFlow_ExpiresWhenCountdownEnds(t *testing.T) {
	cfg := Config{Window: 40 * time.Millisecond, PollInterval: time.Hour, Tick: 5 * time.Millisecond}
	f := New(&fakeAPI{}, cfg, testLogger())
	rec := &recorder{}
	f.OnUpdate(rec.add)

	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f)

	if phase, err := f.Result(); phase != PhaseFailed || !errors.Is(err, ErrExpired) {
		t.Fatalf("Result = %s, %v", phase, err)
	}
	if f.timer.Running() {
		t.Error("countdown still running after expiry")
	}

	var ticks int
	for _, u := range rec.all() {
		if u.Phase == PhasePending && u.Remaining > 0 && u.Remaining < cfg.Window {
			ticks++
		}
	}
	if ticks == 0 {
		t.Error("no countdown ticks delivered")
	}
}

func TestFlow_ServerExpiryShortensWindow(t *testing.T) {
	api := &fakeAPI{reg: &model.DepositRegistration{
		QRToken:   "qr",
		ExpiresAt: model.Timestamp{Time: time.Now().Add(30 * time.Millisecond)},
	}}
	cfg := Config{Window: time.Hour, PollInterval: time.Hour, Tick: 5 * time.Millisecond}
	f := New(api, cfg, testLogger())
	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f)
	if _, err := f.Result(); !errors.Is(err, ErrExpired) {
		t.Errorf("Result error = %v", err)
	}
}

func TestFlow_PollErrorsKeepPolling(t *testing.T) {
	transport := fmt.Errorf("request GET /x: %w", errors.New("connection refused"))
	api := &fakeAPI{statuses: []statusReply{
		{err: transport},
		{err: &httpclient.HTTPError{Status: http.StatusInternalServerError, StatusText: "Internal Server Error"}},
		{st: &model.PaymentTokenStatus{Valid: true, Status: "PAID"}},
	}}
	f := New(api, fastConfig(), testLogger())
	rec := &recorder{}
	f.OnUpdate(rec.add)

	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f)

	if phase, _ := f.Result(); phase != PhaseCompleted {
		t.Fatalf("phase = %s, want completed", phase)
	}
	if api.pollCount() < 3 {
		t.Errorf("polls = %d, want at least 3", api.pollCount())
	}

	var reported bool
	for _, u := range rec.all() {
		if u.Phase == PhasePending && httpclient.StatusOf(u.Err) == http.StatusInternalServerError {
			reported = true
		}
	}
	if !reported {
		t.Error("HTTP poll error not reported to listeners")
	}
}

func TestFlow_StopHaltsTimers(t *testing.T) {
	f := New(&fakeAPI{}, fastConfig(), testLogger())
	rec := &recorder{}
	f.OnUpdate(rec.add)

	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	f.Stop()
	f.Stop()
	waitDone(t, f)

	if phase, err := f.Result(); phase != PhaseFailed || !errors.Is(err, context.Canceled) {
		t.Errorf("Result = %s, %v", phase, err)
	}
	if f.timer.Running() {
		t.Error("countdown running after Stop")
	}

	n := len(rec.all())
	time.Sleep(50 * time.Millisecond)
	if len(rec.all()) != n {
		t.Error("updates after Stop")
	}
}

func TestFlow_StopFromListener(t *testing.T) {
	f := New(&fakeAPI{}, fastConfig(), testLogger())
	f.OnUpdate(func(u Update) {
		if u.Phase == PhasePending {
			f.Stop()
		}
	})
	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f)
}

func TestFlow_Unsubscribe(t *testing.T) {
	f := New(&fakeAPI{}, fastConfig(), testLogger())
	defer f.Stop()

	rec := &recorder{}
	unsub := f.OnUpdate(rec.add)
	unsub()
	unsub()

	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if len(rec.all()) != 0 {
		t.Errorf("removed listener got %d updates", len(rec.all()))
	}
}

func TestFlow_ListenersRunInRegistrationOrder(t *testing.T) {
	f := New(&fakeAPI{}, fastConfig(), testLogger())
	defer f.Stop()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 8 {
		f.OnUpdate(func(u Update) {
			if u.Phase != PhaseRegistering {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	// Removing a middle listener keeps the others in place.
	unsub := f.OnUpdate(func(Update) { t.Error("removed listener called") })
	f.OnUpdate(func(u Update) {
		if u.Phase != PhaseRegistering {
			return
		}
		mu.Lock()
		order = append(order, 8)
		mu.Unlock()
	})
	unsub()

	if err := f.Start(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 9 {
		t.Fatalf("order = %v, want 9 calls", order)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}
