package crawler

import (
	"context"
	"errors"
)

var (
	// ErrBadStatus is returned when the main document answers with 4xx or 5xx
	ErrBadStatus = errors.New("bad response status")
	// ErrRouterUnavailable is returned by hosts that cannot run page scripts
	ErrRouterUnavailable = errors.New("client router not available")
	// ErrInvalidRouter is returned for a router name that is not a dotted identifier
	ErrInvalidRouter = errors.New("invalid client router function")
	// ErrNoPage is returned when reading a page before any navigation
	ErrNoPage = errors.New("no page loaded")
)

// errorType classifies a render failure for the ledger
func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrBadStatus):
		return "bad_status"
	case errors.Is(err, ErrInvalidRouter), errors.Is(err, ErrRouterUnavailable):
		return "router"
	default:
		return "navigation"
	}
}
