package httpclient

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestLoggingTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(srv.URL, WithHTTPClient(&http.Client{Transport: LoggingTransport(nil, logger)}))

	tests := []struct {
		path  string
		query url.Values
		level string
	}{
		{"/ok", url.Values{"otp_token": {"secret"}}, "level=DEBUG"},
		{"/missing", nil, "level=WARN"},
		{"/broken", nil, "level=ERROR"},
	}
	for _, tt := range tests {
		buf.Reset()
		c.Do(context.Background(), Request{Method: http.MethodGet, Path: tt.path, Query: tt.query})
		line := buf.String()
		if !strings.Contains(line, tt.level) {
			t.Errorf("%s: log %q missing %s", tt.path, line, tt.level)
		}
		if strings.Contains(line, "secret") {
			t.Errorf("%s: query string logged: %q", tt.path, line)
		}
	}
}
