// Package notify delivers user-facing notices: transient toasts and, when
// marked Native, system notifications.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/bidwatch/internal/logging"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one message for the user. Title is only shown for native
// notifications.
type Notice struct {
	Level   Level
	Title   string
	Message string
	Native  bool
}

type Notifier interface {
	Show(Notice)
}

// Func adapts a plain function to Notifier.
type Func func(Notice)

func (f Func) Show(n Notice) { f(n) }

// Multi fans each notice out to every non-nil notifier in order.
type Multi []Notifier

func (m Multi) Show(n Notice) {
	for _, nt := range m {
		if nt != nil {
			nt.Show(n)
		}
	}
}

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Log writes notices to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{Logger: logging.Or(logger)}
}

func (l *Log) Show(n Notice) {
	lvl := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		lvl = slog.LevelWarn
	case LevelError:
		lvl = slog.LevelError
	}
	attrs := []any{"kind", string(n.Level)}
	if n.Title != "" {
		attrs = append(attrs, "title", n.Title)
	}
	if n.Native {
		attrs = append(attrs, "native", true)
	}
	logging.Or(l.Logger).Log(context.Background(), lvl, n.Message, attrs...)
}

// Recorder keeps every notice it is shown.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Show(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}

// OrDiscard returns n, or Discard when n is nil.
func OrDiscard(n Notifier) Notifier {
	if n == nil {
		return Discard
	}
	return n
}

// FormatPrice renders a VND amount with thousands separators.
func FormatPrice(v float64) string {
	return humanize.Comma(int64(v))
}
