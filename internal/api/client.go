// Package api is the JSON-over-HTTP transport shared by the intent resolution
// and hints services.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/muesli/reflow/truncate"
	"github.com/sirupsen/logrus"
)

const (
	maxBodyBytes = 4 << 20
	// server messages longer than this many cells are cut
	maxMessageWidth = 200
)

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("service returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("service returned %d", e.Status)
}

// TransportError is a failure below HTTP. Connected reports whether a
// connection to the service was obtained before the failure, i.e. whether the
// request may have reached the server.
type TransportError struct {
	Op        string
	Connected bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client talks to one service base URL.
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	userAgent string
	logger    *logrus.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets the bearer credential source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient returns a client for baseURL. Deadlines come from the caller's context.
func NewClient(baseURL string, logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{},
		tokens:  NoToken{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string { return c.baseURL }

// PostJSON sends body as JSON and returns the raw response body.
func (c *Client) PostJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, payload)
}

// GetJSON issues a GET with query parameters and returns the raw response body.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var connected atomic.Bool
	trace := &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) { connected.Store(true) },
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debugf("api %s %s (request %s)", method, path, reqID)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Connected: connected.Load(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: "reading response", Connected: true, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Message: extractMessage(data)}
	}
	return data, nil
}

// extractMessage pulls a human-readable detail out of an error body.
func extractMessage(body []byte) string {
	var shape struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &shape); err == nil {
		if m := strings.TrimSpace(shape.Message); m != "" {
			return m
		}
		if m := strings.TrimSpace(shape.Error); m != "" {
			return m
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	text = truncate.StringWithTail(text, maxMessageWidth, "…")
	return text
}

// IsStatus reports whether err is a StatusError with one of the given codes.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Status == c {
			return true
		}
	}
	return false
}
