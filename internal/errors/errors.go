// Package errors defines the closed error taxonomy used by the request layer.
// Transport errors are classified once, where a remote operation returns, and
// everything downstream dispatches on Kind.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a failure for retry and offline-queue decisions
type Kind int

const (
	KindUnknown Kind = iota
	// Retryable kinds
	KindNetwork
	KindTimeout
	KindServer
	KindRateLimited
	// Terminal kinds
	KindClient
	KindValidation
	KindCanceled
)

// String returns the lower-case label used in logs and metrics
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindRateLimited:
		return "rate_limited"
	case KindClient:
		return "client"
	case KindValidation:
		return "validation"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may succeed on retry
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}

// RemoteError is the error shape returned by backend operations
type RemoteError struct {
	Kind    Kind
	Status  int
	Name    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// NewRemoteError creates a RemoteError whose kind is derived from the HTTP status
func NewRemoteError(statusCode int, message string, cause error) *RemoteError {
	return &RemoteError{
		Kind:    KindForStatus(statusCode),
		Status:  statusCode,
		Message: message,
		Cause:   cause,
	}
}

// Convenience constructors

func Network(message string, cause error) *RemoteError {
	return &RemoteError{Kind: KindNetwork, Name: "NetworkError", Message: message, Cause: cause}
}

func Timeout(message string, cause error) *RemoteError {
	return &RemoteError{Kind: KindTimeout, Name: "TimeoutError", Message: message, Cause: cause}
}

func Validation(message string) *RemoteError {
	return &RemoteError{Kind: KindValidation, Name: "ValidationError", Message: message}
}

// KindForStatus maps an HTTP status code onto the taxonomy
func KindForStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode >= 500 && statusCode <= 599:
		return KindServer
	case statusCode == http.StatusUnprocessableEntity:
		return KindValidation
	case statusCode >= 400 && statusCode <= 499:
		return KindClient
	default:
		return KindUnknown
	}
}

// Classify translates an arbitrary error into a Kind
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var remote *RemoteError
	if stderrors.As(err, &remote) {
		return remote.Kind
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if stderrors.Is(err, context.Canceled) {
		return KindCanceled
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return kindForGRPCCode(st.Code())
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.ENETUNREACH) ||
		stderrors.Is(err, syscall.EHOSTUNREACH) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) {
		return KindNetwork
	}

	// Opaque errors from third-party clients: last resort message sniffing
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "fetch"), strings.Contains(msg, "network"):
		return KindNetwork
	}
	return KindUnknown
}

// kindForGRPCCode mirrors the codes the gateway client treated as retryable
func kindForGRPCCode(code codes.Code) Kind {
	switch code {
	case codes.Unavailable:
		return KindNetwork
	case codes.DeadlineExceeded:
		return KindTimeout
	case codes.ResourceExhausted:
		return KindRateLimited
	case codes.Aborted, codes.Internal:
		return KindServer
	case codes.Canceled:
		return KindCanceled
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return KindValidation
	case codes.NotFound, codes.AlreadyExists, codes.PermissionDenied, codes.Unauthenticated:
		return KindClient
	default:
		return KindUnknown
	}
}

// IsRetryable is the default retry predicate
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var remote *RemoteError
	if stderrors.As(err, &remote) {
		return remote.Status
	}
	return 0
}
