package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *HTTPError) Error() string {
	return strings.TrimSpace(fmt.Sprintf("HTTP %d %s %s", e.Status, e.StatusText, e.Body))
}

// Message returns the server's human-readable reason. Business-rule
// rejections (bid too low, auction closed) carry it in "detail" or
// "message".
func (e *HTTPError) Message() string {
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if body := strings.TrimSpace(e.Body); body != "" && !strings.HasPrefix(body, "{") {
		return body
	}
	return e.StatusText
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsTransport reports whether err failed before any HTTP status was
// received, such as a refused connection or a timeout.
func IsTransport(err error) bool {
	return err != nil && StatusOf(err) == 0
}

// UserMessage renders err for display: the server's reason for HTTP
// errors, and a connectivity hint for transport failures.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var he *HTTPError
	if errors.As(err, &he) {
		if he.Status == http.StatusUnauthorized {
			return "Your session has expired. Please sign in again."
		}
		return he.Message()
	}
	return "Could not reach the server. Check your connection and try again."
}
