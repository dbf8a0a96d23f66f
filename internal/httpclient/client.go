// Package httpclient sends marketplace API requests with bearer auth and a
// single refresh-and-replay on 401.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/bidwatch/internal/logging"
)

// TokenSource returns the current access token, or "" when signed out.
type TokenSource func(ctx context.Context) string

// Refresher obtains a new session. It is called at most once per request.
type Refresher func(ctx context.Context) error

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	refresh    Refresher
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithTokenSource(fn TokenSource) Option {
	return func(cl *Client) {
		cl.tokens = fn
	}
}

func WithRefresher(fn Refresher) Option {
	return func(cl *Client) {
		cl.refresh = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Or(c.logger)
	return c
}

// SetTokenSource and SetRefresher wire auth after construction, since the
// session controller that refreshes also needs this client.
func (c *Client) SetTokenSource(fn TokenSource) { c.tokens = fn }

func (c *Client) SetRefresher(fn Refresher) { c.refresh = fn }

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one API call. Body is sent verbatim when it is []byte
// or an io.Reader, and JSON-encoded otherwise. NoRetry disables the
// refresh-and-replay on 401.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Header  http.Header
	Body    any
	NoRetry bool
}

// Response is a 2xx reply. JSON holds the body when the server declared a
// JSON content type; Text holds it otherwise.
type Response struct {
	Status int
	Header http.Header
	JSON   json.RawMessage
	Text   string
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.JSON) == 0 {
		return fmt.Errorf("decode response: body is not JSON")
	}
	if err := json.Unmarshal(r.JSON, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, body, contentType)
}

func (c *Client) do(ctx context.Context, req Request, body []byte, contentType string) (*Response, error) {
	resp, err := c.send(ctx, req, body, contentType)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.NoRetry && c.refresh != nil {
		if rerr := c.refresh(ctx); rerr != nil {
			c.logger.Debug("refresh after 401 failed", "path", req.Path, "error", rerr)
		} else {
			drain(resp)
			retry := req
			retry.NoRetry = true
			return c.do(ctx, retry, body, contentType)
		}
	}

	return readResponse(resp)
}

func (c *Client) send(ctx context.Context, req Request, body []byte, contentType string) (*http.Response, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if token := c.tokens(ctx); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	c.logger.Debug("api request", "method", req.Method, "path", req.Path, "retry", !req.NoRetry)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", req.Method, req.Path, err)
	}
	return resp, nil
}

func readResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       string(data),
		}
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if len(bytes.TrimSpace(data)) > 0 {
			out.JSON = json.RawMessage(data)
		}
	} else {
		out.Text = string(data)
	}
	return out, nil
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, "", fmt.Errorf("read request body: %w", err)
		}
		return data, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("marshal request: %w", err)
		}
		return data, "application/json", nil
	}
}

func statusText(resp *http.Response) string {
	// resp.Status is "401 Unauthorized"; keep only the reason phrase.
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
