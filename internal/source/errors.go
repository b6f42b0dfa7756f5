package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error kinds a source may fail with. A source failing with any of them is
// skipped for the run.
var (
	ErrAuth        = errors.New("authentication failed")
	ErrRateLimited = errors.New("rate limited")
	ErrTransport   = errors.New("transport failure")
)

// FetchError wraps a source failure with its kind.
type FetchError struct {
	Source string
	Op     string
	Kind   error
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Source, e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Wrap builds a FetchError of the given kind. A nil err yields nil.
func Wrap(name, op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Source: name, Op: op, Kind: kind, Err: err}
}

// Classify returns the kind of err, treating anything unrecognized as a transport failure.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAuth):
		return ErrAuth
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited
	default:
		return ErrTransport
	}
}

// KindName returns a short label for the kind of err, used in run summaries.
func KindName(err error) string {
	switch Classify(err) {
	case nil:
		return ""
	case ErrAuth:
		return "auth"
	case ErrRateLimited:
		return "rate_limit"
	default:
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "timeout"
		}
		return "transport"
	}
}
