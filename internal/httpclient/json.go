package httpclient

import (
	"context"
	"net/http"
)

// DoJSON performs req and decodes the JSON reply into a T.
func DoJSON[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	resp, err := c.Do(ctx, req)
	if err != nil {
		return out, err
	}
	if len(resp.JSON) == 0 {
		return out, nil
	}
	err = resp.Decode(&out)
	return out, err
}

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	if body == nil {
		body = struct{}{}
	}
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}
