package networking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Result wraps a decoded JSON response body along with response metadata
// callers commonly need (status, headers).
type Result[T any] struct {
	Data       T
	Headers    http.Header
	StatusCode int
}

// fetchOptions configures a FetchJSON call.
type fetchOptions struct {
	method  string
	headers map[string]string
	body    io.Reader
}

// Option configures a FetchJSON call.
type Option func(*fetchOptions)

// WithMethod sets the HTTP method; GET is the default.
func WithMethod(method string) Option {
	return func(o *fetchOptions) { o.method = method }
}

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(o *fetchOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithBody sets the request body.
func WithBody(body io.Reader) Option {
	return func(o *fetchOptions) { o.body = body }
}

// WithBearerToken adds an Authorization: Bearer header.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// FetchJSON issues an HTTP request and decodes a JSON response body into T.
// Non-2xx responses return an error without leaking the response body.
func FetchJSON[T any](ctx context.Context, client *http.Client, url string, opts ...Option) (Result[T], error) {
	cfg := fetchOptions{method: http.MethodGet}
	for _, opt := range opts {
		opt(&cfg)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.method, url, cfg.body)
	if err != nil {
		return Result[T]{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range cfg.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result[T]{}, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Result[T]{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var data T
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil && err != io.EOF {
		return Result[T]{}, fmt.Errorf("decoding response: %w", err)
	}

	return Result[T]{Data: data, Headers: resp.Header, StatusCode: resp.StatusCode}, nil
}

// StatusError represents a non-2xx HTTP response, deliberately omitting the
// response body so upstream error pages never leak through error messages.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %s", e.Status)
}
