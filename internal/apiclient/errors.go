package apiclient

import (
	"errors"
	"fmt"
)

// DefaultErrorMessage is used when the backend gives no message
const DefaultErrorMessage = "API request failed"

// Kind classifies a request failure
type Kind string

const (
	// KindTransport is a network failure before any response arrived
	KindTransport Kind = "transport"
	// KindStatus is a non-2xx response
	KindStatus Kind = "status"
	// KindDecode is a 2xx response whose body is not the expected JSON
	KindDecode Kind = "decode"
	// KindCredential is a 401 response: the token is absent or expired
	KindCredential Kind = "credential"
)

// Error is the single error type every backend failure is normalized to
type Error struct {
	Kind    Kind
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Kind == kind
}
