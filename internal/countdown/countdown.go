// Package countdown runs expiry timers that report the time left on every
// tick and fire once when it reaches zero.
package countdown

import (
	"fmt"
	"sync"
	"time"
)

// Timer is a restartable countdown. The zero value is not usable; call New.
type Timer struct {
	now func() time.Time

	mu       sync.Mutex
	gen      uint64
	deadline time.Time
	running  bool
}

func New() *Timer {
	return &Timer{now: time.Now}
}

// Start begins counting down from total, calling onTick with the time left
// every tick and onExpire once at zero. Starting a running timer replaces
// the previous countdown. Either callback may be nil.
func (t *Timer) Start(total, tick time.Duration, onTick func(remaining time.Duration), onExpire func()) {
	if tick <= 0 {
		tick = time.Second
	}

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.deadline = t.now().Add(total)
	t.running = true
	t.mu.Unlock()

	go t.run(gen, tick, onTick, onExpire)
}

func (t *Timer) run(gen uint64, tick time.Duration, onTick func(time.Duration), onExpire func()) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		remaining := t.deadline.Sub(t.now())
		if remaining <= 0 {
			t.running = false
			t.gen++
			t.mu.Unlock()
			if onExpire != nil {
				onExpire()
			}
			return
		}
		t.mu.Unlock()

		if onTick != nil && t.current(gen) {
			onTick(remaining.Round(time.Second))
		}
	}
}

func (t *Timer) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

// Stop cancels the countdown. Stop does not wait for a callback that has
// already been dispatched, so it may be called from inside one; such a
// callback can still be entering when Stop returns. It is idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.running {
		t.gen++
		t.running = false
	}
	t.mu.Unlock()
}

// Sync moves the deadline so that remaining is left, for example after the
// server reports its own expiry time.
func (t *Timer) Sync(remaining time.Duration) {
	t.mu.Lock()
	if t.running {
		t.deadline = t.now().Add(remaining)
	}
	t.mu.Unlock()
}

// Remaining returns the time left, or zero when stopped or expired.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return max(t.deadline.Sub(t.now()), 0)
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Format renders d as m:ss, the way expiry countdowns are displayed.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
