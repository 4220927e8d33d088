package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/policywatch/policywatch/sdk"
)

// Error is the typed error returned by the retrieval client. Kind is
// always one of the sdk.FetchErrorType taxonomy so callers can build a
// failed FetchResult from it without string parsing.
type Error struct {
	Kind       sdk.FetchErrorType
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind sdk.FetchErrorType, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf maps an arbitrary error to the fetch error taxonomy. Context
// deadline expiry and network timeouts map to timeout_error, everything
// unrecognized to unknown_error.
func KindOf(err error) sdk.FetchErrorType {
	var fErr *Error
	if errors.As(err, &fErr) {
		return fErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return sdk.FetchErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return sdk.FetchErrTimeout
		}
		return sdk.FetchErrNetwork
	}

	return sdk.FetchErrUnknown
}

// retryable reports whether the request that produced err should be
// attempted again: retryable server statuses and timeouts only. All
// other failures, 404 included, are terminal.
func retryable(err error) bool {
	var fErr *Error
	if errors.As(err, &fErr) {
		switch fErr.StatusCode {
		case 500, 502, 503, 504:
			return true
		}
		return fErr.Kind == sdk.FetchErrTimeout
	}
	return KindOf(err) == sdk.FetchErrTimeout
}
