package resilientclient

import (
	"errors"
	"fmt"
)

// APIError is the single error type surfaced by this package. Every failed
// call resolves to exactly one APIError; nothing is swallowed or retried
// beyond the documented limits.
//
// Status carries the HTTP status of the failing response. Status 0 means no
// HTTP status was available: a transport failure, a malformed response, or a
// client-side validation failure. Timeouts triggered by this package carry
// status 408.
type APIError struct {
	Message string
	Status  int

	// RawBody and Headers preserve the failing response for diagnostics,
	// when one existed.
	RawBody []byte
	Headers map[string]string

	// Err is the underlying cause for transport-level failures.
	Err error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// AsAPIError unwraps err into an *APIError if one is in its chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
