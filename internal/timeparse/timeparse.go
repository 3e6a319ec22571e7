// internal/timeparse/timeparse.go
// -------------------------------
// This internal package provides helper functions for parsing server-supplied
// wait hints into concrete durations. The executor uses them to honor
// Retry-After headers on throttled or unavailable responses.
//
// Functions:
// - RetryAfter: convert a Retry-After header value (delta-seconds or HTTP-date) into a duration.
package timeparse

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryAfter parses a Retry-After header value relative to now. Both RFC
// 9110 forms are accepted: a non-negative integer of delta-seconds, or an
// HTTP-date. Unparseable or already-elapsed values yield 0, which callers
// treat as "no hint".
func RetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
