package sdk

import (
	"fmt"
	"strings"
	"time"
)

// FetchErrorType is the closed error taxonomy used across the fetch and
// extraction boundary. Failed FetchResults carry their kind as a prefix
// of the error message, e.g. "not_found_error: ...".
type FetchErrorType string

const (
	FetchErrNetwork        FetchErrorType = "network_error"
	FetchErrParse          FetchErrorType = "parse_error"
	FetchErrAuthentication FetchErrorType = "authentication_error"
	FetchErrNotFound       FetchErrorType = "not_found_error"
	FetchErrTimeout        FetchErrorType = "timeout_error"
	FetchErrUnknown        FetchErrorType = "unknown_error"
)

// FetchResult is the envelope returned by every fetch handler. Handlers
// never return errors out-of-band; all failures are reported in-band
// with Success set to false.
type FetchResult struct {
	RawText      string
	ContentType  string
	FetchedAt    time.Time
	Metadata     map[string]interface{}
	Success      bool
	ErrorMessage string
}

// NewFetchError builds a failed FetchResult whose error message is
// prefixed with the error kind tag.
func NewFetchError(kind FetchErrorType, format string, args ...interface{}) *FetchResult {
	return &FetchResult{
		FetchedAt:    time.Now().UTC(),
		Success:      false,
		ErrorMessage: fmt.Sprintf("%s: %s", kind, fmt.Sprintf(format, args...)),
	}
}

// ErrorKind parses the error taxonomy tag out of a failed result. It
// returns unknown_error when the result carries no recognizable prefix.
func (r *FetchResult) ErrorKind() FetchErrorType {
	if r.Success {
		return ""
	}
	idx := strings.Index(r.ErrorMessage, ":")
	if idx <= 0 {
		return FetchErrUnknown
	}
	switch kind := FetchErrorType(r.ErrorMessage[:idx]); kind {
	case FetchErrNetwork, FetchErrParse, FetchErrAuthentication,
		FetchErrNotFound, FetchErrTimeout, FetchErrUnknown:
		return kind
	default:
		return FetchErrUnknown
	}
}

// SetMetadata stores a metadata value, allocating the map on first use.
func (r *FetchResult) SetMetadata(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}
