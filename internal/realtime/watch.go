package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/bidwatch/internal/notify"
)

// tracked is every event a Tracker folds into its view.
var tracked = []EventType{
	EventConnected,
	EventDisconnected,
	EventInitialData,
	EventBidUpdate,
	EventExtended,
	EventEndingSoon,
	EventEnded,
}

// Tracker is one consumer's live view of an auction. Several trackers may
// share a subject; the socket closes when the last one is closed.
type Tracker struct {
	ch       *Channel
	subject  int64
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	view    AuctionView
	unsubs  []func()
	changes []func(AuctionView)
	closed  bool
}

// Watch subscribes to subject, connects if needed, and returns a tracker
// whose view follows the auction. Notices for extensions, closing time and
// results go to notifier.
func (c *Channel) Watch(ctx context.Context, subject int64, credential string, notifier notify.Notifier) (*Tracker, error) {
	t := &Tracker{
		ch:       c,
		subject:  subject,
		notifier: notify.OrDiscard(notifier),
		logger:   c.logger.With("auction_id", subject),
		now:      time.Now,
		view:     AuctionView{State: StateDisconnected},
	}

	c.acquire(subject)
	for _, typ := range tracked {
		t.unsubs = append(t.unsubs, c.On(subject, typ, t.handle))
	}

	if err := c.Connect(ctx, subject, credential); err != nil {
		t.Close()
		return nil, err
	}

	// A shared subject may already be open; its Connected event went to
	// the earlier consumers.
	if c.State(subject) == StateOpen {
		t.mu.Lock()
		t.view.State = StateOpen
		t.mu.Unlock()
	}
	return t, nil
}

func (t *Tracker) handle(ev Event) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.view.Apply(ev, t.now())
	view := t.view.Clone()
	changes := t.changes
	t.mu.Unlock()

	if n, ok := t.notice(ev, view); ok {
		t.notifier.Show(n)
	}
	for _, fn := range changes {
		fn(view)
	}
}

func (t *Tracker) notice(ev Event, view AuctionView) (notify.Notice, bool) {
	switch e := ev.(type) {
	case Extended:
		minutes := e.ExtensionMinutes
		if minutes <= 0 {
			minutes = 5
		}
		return notify.Notice{
			Level:   notify.LevelInfo,
			Message: fmt.Sprintf("Auction extended by %d minutes!", minutes),
		}, true

	case EndingSoon:
		name := e.AuctionName
		if name == "" && view.Snapshot != nil {
			name = view.Snapshot.DisplayName()
		}
		if name == "" {
			name = "This auction"
		}
		return notify.Notice{
			Level:   notify.LevelWarning,
			Message: name + " is ending soon!",
		}, true

	case Ended:
		if e.Winner == nil {
			return notify.Notice{Level: notify.LevelInfo, Message: "Auction ended with no bids"}, true
		}
		price := 0.0
		if e.FinalPrice != nil {
			price = *e.FinalPrice
		}
		return notify.Notice{
			Level:   notify.LevelSuccess,
			Message: fmt.Sprintf("Auction ended! Winner: %s (%s VND)", e.Winner.Name, notify.FormatPrice(price)),
		}, true
	}
	return notify.Notice{}, false
}

// OnChange registers fn to receive a copy of the view after every event.
func (t *Tracker) OnChange(fn func(AuctionView)) {
	t.mu.Lock()
	t.changes = append(t.changes[:len(t.changes):len(t.changes)], fn)
	t.mu.Unlock()
}

// View returns a copy of the current view.
func (t *Tracker) View() AuctionView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view.Clone()
}

func (t *Tracker) Subject() int64 {
	return t.subject
}

// Close removes the tracker's listeners and disconnects the subject when no
// other tracker is using it. It is safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	unsubs := t.unsubs
	t.unsubs = nil
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if t.ch.release(t.subject) {
		t.logger.Debug("last watcher left, disconnected")
	}
}
