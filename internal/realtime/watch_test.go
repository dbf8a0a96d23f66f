package realtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/bidwatch/internal/notify"
	"github.com/dukerupert/bidwatch/internal/websocket"
	"github.com/dukerupert/bidwatch/internal/websocket/wstest"
)

func TestWatch_FoldsAndNotifies(t *testing.T) {
	ch, d := newTestChannel(t, Config{})
	var rec notify.Recorder

	tr, err := ch.Watch(context.Background(), 42, "tok", &rec)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer tr.Close()

	changes := make(chan AuctionView, 16)
	tr.OnChange(func(v AuctionView) { changes <- v })

	conn := d.conn(0)
	conn.send(t, "auction_initial_data", map[string]any{"id": 42, "auction_name": "Vase", "current_highest_bid": 100000, "bid_count": 2})
	conn.send(t, "bid_update", map[string]any{"new_highest_bid": 150000, "total_bids": 3})
	conn.send(t, "auction_extended", map[string]any{"new_end_time": "2025-01-01T00:10:00Z"})
	conn.send(t, "auction_ending_soon", map[string]any{})
	conn.send(t, "auction_ended", map[string]any{"winner": map[string]any{"name": "bob"}, "final_price": 150000})

	var last AuctionView
	for range 5 {
		select {
		case last = <-changes:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for view change")
		}
	}

	if last.State != StateOpen {
		t.Errorf("State = %s", last.State)
	}
	if last.Snapshot.CurrentHighestBid != 150000 || last.Snapshot.BidCount != 3 {
		t.Errorf("snapshot = %+v", last.Snapshot)
	}
	if !last.Ended || len(last.Bids) != 1 {
		t.Errorf("ended = %v bids = %d", last.Ended, len(last.Bids))
	}

	want := []notify.Notice{
		{Level: notify.LevelInfo, Message: "Auction extended by 5 minutes!"},
		{Level: notify.LevelWarning, Message: "Vase is ending soon!"},
		{Level: notify.LevelSuccess, Message: "Auction ended! Winner: bob (150,000 VND)"},
	}
	got := rec.Notices()
	if len(got) != len(want) {
		t.Fatalf("notices = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notice %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWatch_EndedWithoutBids(t *testing.T) {
	ch, d := newTestChannel(t, Config{})
	var rec notify.Recorder
	tr, err := ch.Watch(context.Background(), 1, "tok", &rec)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer tr.Close()

	d.conn(0).send(t, "ended", map[string]any{})
	eventually(t, "ended notice", func() bool { return len(rec.Notices()) == 1 })
	if n := rec.Notices()[0]; n.Level != notify.LevelInfo || n.Message != "Auction ended with no bids" {
		t.Errorf("notice = %+v", n)
	}
}

func TestWatch_ReferenceCounted(t *testing.T) {
	ch, d := newTestChannel(t, Config{})
	ctx := context.Background()

	a, err := ch.Watch(ctx, 7, "tok", nil)
	if err != nil {
		t.Fatalf("Watch a: %v", err)
	}
	b, err := ch.Watch(ctx, 7, "tok", nil)
	if err != nil {
		t.Fatalf("Watch b: %v", err)
	}
	if d.dials() != 1 {
		t.Errorf("dials = %d, want 1", d.dials())
	}
	if b.View().State != StateOpen {
		t.Errorf("second tracker state = %s, want open", b.View().State)
	}

	a.Close()
	a.Close()
	if ch.State(7) != StateOpen || d.conn(0).isClosed() {
		t.Fatal("closing one of two trackers disconnected the subject")
	}

	// The closed tracker no longer folds events.
	d.conn(0).send(t, "bid_update", map[string]any{"new_highest_bid": 5})
	eventually(t, "b sees bid", func() bool { return len(b.View().Bids) == 1 })
	if len(a.View().Bids) != 0 {
		t.Error("closed tracker received an event")
	}

	b.Close()
	eventually(t, "conn closed", d.conn(0).isClosed)
	if ch.State(7) != StateDisconnected {
		t.Errorf("State = %s after last tracker closed", ch.State(7))
	}
}

// pauseHandler blocks the first goroutine that logs msg until resume is
// closed.
type pauseHandler struct {
	msg     string
	reached chan struct{}
	resume  chan struct{}
	once    sync.Once
}

func (h *pauseHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *pauseHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h *pauseHandler) WithGroup(string) slog.Handler           { return h }

func (h *pauseHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.once.Do(func() {
			close(h.reached)
			<-h.resume
		})
	}
	return nil
}

func TestWatch_WatchDuringLastClose(t *testing.T) {
	h := &pauseHandler{
		msg:     "last watcher left, disconnected",
		reached: make(chan struct{}),
		resume:  make(chan struct{}),
	}
	d := &fakeDialer{}
	ch := NewChannel(Config{BaseURL: "http://api.test"}, d, slog.New(h))
	t.Cleanup(ch.Close)
	ctx := context.Background()

	a, err := ch.Watch(ctx, 7, "tok", nil)
	if err != nil {
		t.Fatalf("Watch a: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		a.Close()
		close(closed)
	}()
	select {
	case <-h.reached:
	case <-time.After(time.Second):
		t.Fatal("Close never released the subject")
	}

	// A second watcher arrives while the first is still inside Close.
	b, err := ch.Watch(ctx, 7, "tok", nil)
	if err != nil {
		t.Fatalf("Watch b: %v", err)
	}
	defer b.Close()
	close(h.resume)
	<-closed

	if d.dials() != 2 {
		t.Fatalf("dials = %d, want a fresh dial for the second watcher", d.dials())
	}
	eventually(t, "first socket closed", d.conn(0).isClosed)

	ch.mu.Lock()
	reg, ok := ch.regs[7]
	consumers := 0
	if ok {
		consumers = reg.consumers
	}
	ch.mu.Unlock()
	if !ok || consumers != 1 {
		t.Fatalf("registration present = %v consumers = %d, want 1", ok, consumers)
	}
	if ch.State(7) != StateOpen || b.View().State != StateOpen {
		t.Errorf("channel state = %s view state = %s", ch.State(7), b.View().State)
	}

	d.conn(1).send(t, "bid_update", map[string]any{"new_highest_bid": 9})
	eventually(t, "second watcher sees bid", func() bool { return len(b.View().Bids) == 1 })
}

func TestWatch_ConnectFailureCleansUp(t *testing.T) {
	ch, _ := newTestChannel(t, Config{})
	if _, err := ch.Watch(context.Background(), 3, "", nil); err == nil {
		t.Fatal("Watch without credential succeeded")
	}
	ch.mu.Lock()
	_, ok := ch.regs[3]
	ch.mu.Unlock()
	if ok {
		t.Error("failed Watch left a registration behind")
	}
}

func TestWatch_EndToEnd(t *testing.T) {
	srv, hub := wstest.NewServer()
	defer srv.Close()

	ch := NewChannel(Config{BaseURL: srv.URL}, websocket.NewDialer(nil), nil)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := ch.Watch(ctx, 42, "tok", nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if path := hub.WaitJoined(2 * time.Second); path != "/ws/auction/42/tok" {
		t.Fatalf("joined path = %q", path)
	}

	if err := hub.Send("bid_update", map[string]any{"new_highest_bid": 150000, "total_bids": 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	eventually(t, "bid folded", func() bool {
		v := tr.View()
		return v.Snapshot != nil && v.Snapshot.BidCount == 3
	})

	hub.CloseAll()
	eventually(t, "disconnected", func() bool { return tr.View().State == StateDisconnected })

	tr.Close()
	if len(ch.OpenSubjects()) != 0 {
		t.Errorf("OpenSubjects = %v", ch.OpenSubjects())
	}
}
