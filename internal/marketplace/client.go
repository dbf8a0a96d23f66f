// Package marketplace wraps the auction marketplace REST API.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dukerupert/bidwatch/internal/httpclient"
)

type Client struct {
	http *httpclient.Client
}

func New(c *httpclient.Client) *Client {
	return &Client{http: c}
}

// HTTP exposes the underlying client for callers that need raw access.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, httpclient.Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if body == nil {
		body = struct{}{}
	}
	return c.call(ctx, httpclient.Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, httpclient.Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) call(ctx context.Context, req httpclient.Request, out any) error {
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.JSON) == 0 {
		return nil
	}
	return resp.Decode(out)
}

// decodeList accepts either a bare JSON array or an object wrapping the
// array under "items" or "data".
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Items []T `json:"items"`
		Data  []T `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return wrapped.Data, nil
}

func (c *Client) getList(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	resp, err := c.http.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	return resp.JSON, nil
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}
