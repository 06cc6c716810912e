// Package apiclient is the authenticated HTTP client for the course backend.
// It attaches the session's bearer token and normalizes every failure into
// *Error.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"admin-console/internal/odata"
)

// TokenSource supplies the current access token, empty when there is none
type TokenSource interface {
	Token() string
}

// Client sends JSON requests to the backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// New creates a client. httpClient may be nil to use http.DefaultClient.
func New(baseURL string, httpClient *http.Client, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
	}
}

// RequestOption customizes one request
type RequestOption func(*http.Request)

// WithHeader sets a header. Caller headers override the defaults.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery appends a raw, already-encoded query string
func WithQuery(rawQuery string) RequestOption {
	return func(r *http.Request) {
		if rawQuery == "" {
			return
		}
		if r.URL.RawQuery != "" {
			r.URL.RawQuery += "&" + rawQuery
			return
		}
		r.URL.RawQuery = rawQuery
	}
}

type errorPayload struct {
	Message string `json:"message"`
}

// Do sends a request. body, when non-nil, is JSON-encoded. out, when non-nil,
// receives the decoded response; an empty response body leaves it untouched.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any, opts ...RequestOption) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for _, opt := range opts {
		opt(req)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Method: method, Path: path, Message: DefaultErrorMessage, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Method: method, Path: path, Status: res.StatusCode, Message: DefaultErrorMessage, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var payload errorPayload
		_ = json.Unmarshal(data, &payload)

		msg := payload.Message
		if msg == "" {
			msg = DefaultErrorMessage
		}
		kind := KindStatus
		if res.StatusCode == http.StatusUnauthorized {
			kind = KindCredential
		}
		return &Error{Kind: kind, Method: method, Path: path, Status: res.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindDecode, Method: method, Path: path, Status: res.StatusCode, Message: "malformed response payload", Err: err}
	}
	return nil
}

// Get sends a GET and decodes the response as T
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	var out T
	err := c.Do(ctx, http.MethodGet, path, nil, &out, opts...)
	return out, err
}

// Post sends a POST with a JSON body and decodes the response as T
func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	var out T
	err := c.Do(ctx, http.MethodPost, path, body, &out, opts...)
	return out, err
}

// Put sends a PUT with a JSON body and decodes the response as T
func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	var out T
	err := c.Do(ctx, http.MethodPut, path, body, &out, opts...)
	return out, err
}

// Delete sends a DELETE and decodes the response as T
func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	var out T
	err := c.Do(ctx, http.MethodDelete, path, nil, &out, opts...)
	return out, err
}

// ListResponse is the OData list envelope
type ListResponse[T any] struct {
	Value []T `json:"value"`
	Count *int `json:"@odata.count,omitempty"`
}

// Page is one page of rows plus the server-side total
type Page[T any] struct {
	Rows       []T
	TotalCount int
}

// ListPage fetches one page of an OData list endpoint
func ListPage[T any](ctx context.Context, c *Client, endpoint string, q odata.Query) (Page[T], error) {
	res, err := Get[ListResponse[T]](ctx, c, endpoint, WithQuery(q.Encode()))
	if err != nil {
		return Page[T]{}, err
	}

	page := Page[T]{Rows: res.Value}
	if page.Rows == nil {
		page.Rows = []T{}
	}
	if res.Count != nil {
		page.TotalCount = *res.Count
	}
	return page, nil
}
