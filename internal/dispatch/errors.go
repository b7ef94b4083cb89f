package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"parley/internal/api"
)

var (
	// ErrEmptyText: the request text was blank after trimming; nothing was sent.
	ErrEmptyText = errors.New("command text is empty")
	// ErrInFlight: another dispatch is still running.
	ErrInFlight = errors.New("a command is already being processed")
)

// Kind classifies dispatch failures.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindUnreachable  Kind = "unreachable"
	KindOther        Kind = "other"
)

// Error is a classified dispatch failure. Error() is the user-facing text.
type Error struct {
	Kind    Kind
	Status  int
	Detail  string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnauthorized:
		return "your session has expired; please sign in again"
	case KindForbidden:
		return "that action is not permitted for your role"
	case KindUnreachable:
		if e.Timeout {
			return "the assistant took too long to respond; check your connection and try again"
		}
		return "cannot reach the assistant service; check your connection"
	default:
		if e.Detail != "" {
			return fmt.Sprintf("something went wrong, please try again (%s)", e.Detail)
		}
		return "something went wrong, please try again"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps a transport or status failure onto the dispatch taxonomy.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	var se *api.StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusUnauthorized:
			return &Error{Kind: KindUnauthorized, Status: se.Status, Detail: se.Message, Err: err}
		case http.StatusForbidden:
			return &Error{Kind: KindForbidden, Status: se.Status, Detail: se.Message, Err: err}
		default:
			return &Error{Kind: KindOther, Status: se.Status, Detail: se.Message, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUnreachable, Timeout: true, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindUnreachable, Timeout: true, Err: err}
	}
	var te *api.TransportError
	if errors.As(err, &te) {
		return &Error{Kind: KindUnreachable, Err: err}
	}
	return &Error{Kind: KindOther, Err: err}
}
