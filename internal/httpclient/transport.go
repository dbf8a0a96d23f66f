package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/bidwatch/internal/logging"
)

// loggingTransport logs every round trip with method, path, status and
// duration. Server errors log at error level and client errors at warn.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

// LoggingTransport wraps next, or http.DefaultTransport when nil, so each
// request is logged. Query strings are left out since they may carry tokens.
func LoggingTransport(next http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, logger: logging.Or(logger)}
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(r)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		t.logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
		return nil, err
	}
	attrs = append(attrs, slog.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode >= 500:
		t.logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
	case resp.StatusCode >= 400:
		t.logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
	default:
		t.logger.LogAttrs(r.Context(), slog.LevelDebug, "request", attrs...)
	}
	return resp, nil
}
