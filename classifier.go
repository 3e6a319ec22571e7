// classifier.go
// -------------
// Pure translation of raw exchange outcomes into APIErrors. No I/O, no
// state: the executor feeds in a response or transport error and gets back
// the one error it may surface or act on.
package resilientclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// errExchangeTimeout marks an exchange abandoned by the executor's timer.
var errExchangeTimeout = errors.New("exchange timed out")

// retryableStatus lists the statuses treated as transient. Status 0 covers
// transport failures, which are retried under the same budget.
var retryableStatus = map[int]bool{
	0:                              true,
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// classify converts the outcome of one exchange into an *APIError, or nil
// for a 2xx response.
func classify(resp *WireResponse, err error) *APIError {
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		if errors.Is(err, errExchangeTimeout) {
			return &APIError{Message: "Request timeout", Status: http.StatusRequestTimeout, Err: err}
		}
		return &APIError{Message: "Network error", Status: 0, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &APIError{
		Message: serverMessage(resp),
		Status:  resp.StatusCode,
		RawBody: resp.Body,
		Headers: resp.Headers,
	}
}

// serverMessage extracts a human-readable message from an error response:
// the JSON "message" or "error" field when the body parses, otherwise
// "HTTP <status>: <statusText>".
func serverMessage(resp *WireResponse) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}

	text := http.StatusText(resp.StatusCode)
	if text == "" {
		text = "Unknown status"
	}
	return "HTTP " + strconv.Itoa(resp.StatusCode) + ": " + text
}

// humanize replaces the message of a terminal, non-auth failure with a
// clearer one for common statuses. The original status, body, and headers
// are preserved for diagnostics.
func humanize(e *APIError) *APIError {
	switch {
	case e.Status == http.StatusForbidden:
		e.Message = "You do not have permission to perform this action"
	case e.Status == http.StatusNotFound:
		e.Message = "The requested resource was not found"
	case e.Status == http.StatusUnprocessableEntity:
		e.Message = "Invalid input provided"
	case e.Status >= 500:
		e.Message = "Server error. Please try again later"
	}
	return e
}

// authFailureMessage picks the human message for a terminated session,
// keying off the server-provided text of the original 401.
func authFailureMessage(serverMsg string) string {
	if strings.Contains(strings.ToLower(serverMsg), "expired") {
		return "Your session has expired. Please sign in again"
	}
	return "Authentication failed. Please sign in again"
}

// canceled reports whether an exchange failed because the caller's context
// ended; such failures are never retried.
func canceled(e *APIError) bool {
	return e.Err != nil &&
		(errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded))
}

