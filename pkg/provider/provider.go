// Package provider defines the uniform contract every vendor adapter
// implements, plus the shared error taxonomy the pipeline's fallback logic
// branches on.
//
// An adapter wraps exactly one external API behind Call. It performs a single
// outbound request (no internal retries; fallback is the pipeline's job) and
// reports failure as a *provider.Error carrying one of the defined kinds.
package provider

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// ErrorKind classifies adapter failures for fallback decisions.
type ErrorKind string

const (
	// AuthError means a bad or missing API key. The chain still advances
	// (the next vendor has its own credentials) but the failure is logged
	// at error level since operator action is required.
	AuthError ErrorKind = "auth_error"
	// QuotaExceeded means the vendor rate-limited or exhausted the plan.
	QuotaExceeded ErrorKind = "quota_exceeded"
	// Timeout means the vendor did not answer within the HTTP client deadline.
	Timeout ErrorKind = "timeout"
	// MalformedResponse means the vendor answered with an unexpected payload.
	MalformedResponse ErrorKind = "malformed_response"
	// NetworkError covers connection-level failures.
	NetworkError ErrorKind = "network_error"
)

// Error is the only error type an adapter returns across the Call boundary.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Provider + ": " + string(e.Kind)
	}
	return e.Provider + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as an adapter failure of the given kind.
func NewError(providerName string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Provider: providerName, Err: err}
}

// Errorf is NewError with a formatted cause.
func Errorf(providerName string, kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: providerName, Err: errors.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err. Errors that did not come through an
// adapter classify as NetworkError, the catch-all for unexpected failures.
func KindOf(err error) ErrorKind {
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	return NetworkError
}

// Adapter wraps one vendor API behind a uniform call signature. I is the
// stage input, O the stage payload. Implementations never panic across this
// boundary and return *Error on failure.
type Adapter[I, O any] interface {
	Name() string
	Call(ctx context.Context, in I) (O, error)
}

// Func adapts a plain function into an Adapter. Used heavily in tests.
type Func[I, O any] struct {
	AdapterName string
	Fn          func(ctx context.Context, in I) (O, error)
}

func (f Func[I, O]) Name() string { return f.AdapterName }

func (f Func[I, O]) Call(ctx context.Context, in I) (O, error) {
	return f.Fn(ctx, in)
}

// ClassifyStatus maps a vendor HTTP status to an ErrorKind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthError
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return QuotaExceeded
	case status == http.StatusGatewayTimeout:
		return Timeout
	default:
		return NetworkError
	}
}

// ClassifyTransportError maps a transport-level error from http.Client.Do to
// an ErrorKind, distinguishing deadline expiry from connection failures.
func ClassifyTransportError(err error) ErrorKind {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}
	return NetworkError
}

// NewHTTPClient returns the http.Client adapters share. The client timeout is
// the only deadline adapters enforce; its expiry surfaces as Timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
