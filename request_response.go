// request_response.go
// -------------------
// Wire-level and caller-facing request/response types.
//
// WireRequest/WireResponse describe a single network exchange as seen by a
// Transport. Request is the caller-facing descriptor accepted by the
// executor; Envelope is the decoded result handed back to the caller.
package resilientclient

import (
	"strings"
	"time"
)

// WireRequest is a fully built outbound request: the token has been attached
// and the body serialized. A Transport sends it as-is.
type WireRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// WireResponse is the raw outcome of a single exchange before classification
// or decoding.
type WireResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Request describes one logical API call. Zero values defer to the client
// Config; pointer fields distinguish "unset" from an explicit zero, matching
// the override style used elsewhere in the package.
//
// A Request is not mutated by the executor: headers are copied on every
// attempt so the bearer token picked up after a refresh never leaks back
// into the descriptor.
type Request struct {
	Method  string
	URL     string // absolute, or a path resolved against Config.BaseURL
	Headers map[string]string

	// Body is serialized to JSON unless it is already raw bytes
	// ([]byte or json.RawMessage), which pass through unmodified and
	// without a Content-Type override.
	Body any

	Timeout    time.Duration // 0 = Config.Timeout; must not be negative
	Retries    *int          // nil = Config.MaxRetries; must not be negative
	RetryDelay time.Duration // 0 = Config.RetryDelay

	// RequiresAuth fails the call immediately with a 401 APIError when no
	// access token is stored, before any network activity.
	RequiresAuth bool
	// SkipAuth never attaches a token, even if one is stored.
	SkipAuth bool
}

// Envelope is the decoded result of a successful call. Data holds the parsed
// JSON body (or the raw text for string/[]byte targets); RawBody is always
// the unparsed payload.
type Envelope[T any] struct {
	Data       T
	StatusCode int
	Headers    map[string]string
	RawBody    []byte
}

// headerValue performs a case-insensitive lookup in a wire header map.
func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// copyHeaders returns a shallow copy so per-attempt mutation never touches
// the caller's map.
func copyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		out[k] = v
	}
	return out
}
