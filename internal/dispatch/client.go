// Package dispatch sends transcripts to the intent resolution service.
package dispatch

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"parley/internal/config"
	"parley/internal/response"

	"github.com/sirupsen/logrus"
)

// Request is one command. Text must be non-blank.
type Request struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// Poster is the transport used by Client.
type Poster interface {
	PostJSON(ctx context.Context, path string, body any) ([]byte, error)
}

// Options configure a Client.
type Options struct {
	CommandPath       string
	ManagerActionPath string
	Timeout           time.Duration
	Retry             RetryPolicy
}

// OptionsFromConfig reads service paths, deadline and retry policy.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CommandPath:       cfg.Service.CommandPath,
		ManagerActionPath: cfg.Service.ManagerActionPath,
		Timeout:           cfg.DispatchTimeout(),
		Retry:             RetryPolicy{MaxRetries: cfg.Service.RetryMax, Backoff: cfg.RetryBackoff()},
	}
}

// Client dispatches commands with at most one call in flight.
type Client struct {
	poster Poster
	opts   Options
	logger *logrus.Logger

	inflight atomic.Bool
}

// New returns a Client.
func New(poster Poster, opts Options, logger *logrus.Logger) *Client {
	if opts.CommandPath == "" {
		opts.CommandPath = "/voice/command"
	}
	if opts.ManagerActionPath == "" {
		opts.ManagerActionPath = "/voice/manager-action"
	}
	return &Client{poster: poster, opts: opts, logger: logger}
}

// InFlight reports whether a dispatch is running.
func (c *Client) InFlight() bool { return c.inflight.Load() }

// Dispatch resolves one command. Blank text returns ErrEmptyText without a
// network call; a concurrent call returns ErrInFlight. Failures are *Error.
func (c *Client) Dispatch(ctx context.Context, req Request) (response.Result, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.Context = strings.TrimSpace(req.Context)
	if req.Text == "" {
		return response.Result{}, ErrEmptyText
	}
	return c.send(ctx, c.opts.CommandPath, req)
}

// ManagerAction sends a free-text manager instruction (bulk approve, forward
// to admin) to its dedicated endpoint with the same guards and taxonomy.
func (c *Client) ManagerAction(ctx context.Context, text string) (response.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return response.Result{}, ErrEmptyText
	}
	return c.send(ctx, c.opts.ManagerActionPath, struct {
		Text string `json:"text"`
	}{Text: text})
}

func (c *Client) send(ctx context.Context, path string, body any) (response.Result, error) {
	if !c.inflight.CompareAndSwap(false, true) {
		return response.Result{}, ErrInFlight
	}
	defer c.inflight.Store(false)

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		raw, err := c.poster.PostJSON(ctx, path, body)
		if err == nil {
			res := response.Decode(raw)
			c.logger.Infof("dispatch %s -> intent=%s fallback=%t in %s", path, res.Intent, res.Fallback, time.Since(start).Round(time.Millisecond))
			return res, nil
		}
		if !c.opts.Retry.Allow(attempt, err) {
			derr := Classify(err)
			c.logger.Warnf("dispatch %s failed (%s): %v", path, derr.Kind, err)
			return response.Result{}, derr
		}
		c.logger.Warnf("dispatch %s attempt %d failed, retrying: %v", path, attempt+1, err)
		if werr := c.opts.Retry.wait(ctx); werr != nil {
			return response.Result{}, Classify(werr)
		}
	}
}
