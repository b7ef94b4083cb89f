package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"parley/internal/api"
	"parley/internal/config"
)

// RetryPolicy allows at most config.MaxRetries transparent retries, and only
// for failures where the request cannot have reached application logic: the
// connection was never established, or a gateway answered 502/503/504.
// Timeouts and 500s are never retried since the intent may have run.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// Retryable reports whether err alone permits another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if api.IsStatus(err, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout) {
		return true
	}
	var te *api.TransportError
	if errors.As(err, &te) {
		return !te.Connected
	}
	return false
}

// Allow reports whether attempt (0-based, already failed with err) may be retried.
func (p RetryPolicy) Allow(attempt int, err error) bool {
	limit := p.MaxRetries
	if limit > config.MaxRetries {
		limit = config.MaxRetries
	}
	return attempt < limit && Retryable(err)
}

func (p RetryPolicy) wait(ctx context.Context) error {
	if p.Backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
