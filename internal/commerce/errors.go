package commerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMalformedResponse = errors.New("commerce: malformed response")
	ErrMissingCartID     = errors.New("commerce: cart id required")
	ErrMissingOrderID    = errors.New("commerce: order id required")
)

// UpstreamError is returned for every failed remote call: transport errors,
// non-2xx responses, undecodable bodies and per-call timeouts.
type UpstreamError struct {
	Op      string
	Status  int
	Code    string
	Detail  string
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "commerce: %s failed", e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%q", e.Code)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, " detail=%q", e.Detail)
	}
	if e.Timeout {
		b.WriteString(" timeout")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// AsUpstream extracts an *UpstreamError from an error chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream, true
	}
	return nil, false
}

func transportError(op string, err error) *UpstreamError {
	return &UpstreamError{
		Op:      op,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}
