// config.go
// ----------
// This file defines the Config structure, which customizes client behavior:
// base URL resolution, the refresh endpoint, retry budget, backoff timing,
// and which paths count as authentication endpoints.
//
// Pointer fields distinguish an explicit zero from "use the default"
// (MaxRetries in particular, where 0 means "never retry").
package resilientclient

import "time"

// Config customizes a Client. The zero value is usable for tests against an
// absolute-URL transport; New fills in every unset field.
type Config struct {
	// BaseURL prefixes relative request URLs, e.g. "https://api.stridetrack.io".
	BaseURL string

	// RefreshPath is the token refresh endpoint, resolved against BaseURL.
	RefreshPath string

	// AuthPathPrefixes mark authentication endpoints. A 401 from a matching
	// path never triggers a refresh attempt.
	AuthPathPrefixes []string

	Timeout    time.Duration // per-exchange timeout
	MaxRetries *int          // retry budget for retryable failures
	RetryDelay time.Duration // base of the exponential backoff schedule
	MaxBackoff time.Duration // cap on any single backoff wait

	// TokenExpiryLeeway triggers a proactive refresh when the stored access
	// token is a JWT expiring within this window.
	TokenExpiryLeeway time.Duration
}

const (
	defaultRefreshPath = "/api/auth/refresh"
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 3
	defaultRetryDelay  = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultLeeway      = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.RefreshPath == "" {
		c.RefreshPath = defaultRefreshPath
	}
	if c.AuthPathPrefixes == nil {
		c.AuthPathPrefixes = []string{"/api/auth/"}
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries == nil {
		n := defaultMaxRetries
		c.MaxRetries = &n
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.TokenExpiryLeeway == 0 {
		c.TokenExpiryLeeway = defaultLeeway
	}
	return c
}
