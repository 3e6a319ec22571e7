// sdk.go
// ------
// The sdk.go file contains the core Client struct and its methods.
// This is the main entry point of the package for users.
//
// Key functionalities include:
// - Initializing the client with New()
// - Making typed requests via Execute[T]()
// - Subscribing to auth lifecycle events via Events()
// - Accessing and seeding the token store via Tokens()
//
// The Client relies on a RequestExecutor and a TokenRefreshCoordinator to
// handle retries, timeouts, and single-flight session renewal, ensuring
// consistent behavior across all callers.
package resilientclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Client is the resilient request layer for the StrideTrack API. All
// outbound calls go through it; it owns the timeout, retry, and token
// refresh behavior so route-specific code never does.
type Client struct {
	cfg       Config
	transport Transport
	store     TokenStore
	bus       *AuthEventBus
	refresher *TokenRefreshCoordinator
	executor  *RequestExecutor
	logger    *slog.Logger
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithTransport substitutes the network exchange implementation. Used by
// tests and by hosts that already own an HTTP stack.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithTokenStore substitutes the token persistence backend. The default is
// an in-memory store; long-lived hosts typically pass a KeyringTokenStore.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.store = s }
}

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client from cfg, filling unset fields with defaults.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg.withDefaults(),
		transport: NewHTTPTransport(),
		store:     NewMemoryTokenStore(),
		bus:       NewAuthEventBus(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}

	refreshURL := resolveURL(c.cfg.BaseURL, c.cfg.RefreshPath)
	c.refresher = NewTokenRefreshCoordinator(c.transport, c.store, c.bus, refreshURL, c.cfg.Timeout, c.logger)
	c.executor = NewRequestExecutor(c.transport, c.store, c.bus, c.refresher, c.cfg, c.logger)
	return c
}

// Events returns the bus on which token refreshes and terminal auth
// failures are published. Session-management code subscribes here.
func (c *Client) Events() *AuthEventBus { return c.bus }

// Tokens returns the token store. Login and registration flows seed it;
// logout clears it.
func (c *Client) Tokens() TokenStore { return c.store }

// Refresher returns the refresh coordinator, exposed so the single-flight
// guarantee can be exercised directly.
func (c *Client) Refresher() *TokenRefreshCoordinator { return c.refresher }

// Do executes req and returns the undecoded envelope.
func (c *Client) Do(ctx context.Context, req *Request) (*Envelope[json.RawMessage], error) {
	return Execute[json.RawMessage](ctx, c, req)
}

// Execute runs req through the client and decodes the response body into T.
// JSON payloads are unmarshaled; a 204 (or empty body) yields the zero T;
// other content types are handed back raw, assigned through when T is
// string or []byte. On failure the returned error is always an *APIError.
func Execute[T any](ctx context.Context, c *Client, req *Request) (*Envelope[T], error) {
	resp, err := c.executor.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	env := &Envelope[T]{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		RawBody:    resp.Body,
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return env, nil
	}

	if isJSONContentType(headerValue(resp.Headers, "Content-Type")) {
		if err := json.Unmarshal(resp.Body, &env.Data); err != nil {
			return nil, &APIError{
				Message: "decode response body: " + err.Error(),
				Status:  resp.StatusCode,
				RawBody: resp.Body,
				Headers: resp.Headers,
				Err:     err,
			}
		}
		return env, nil
	}

	switch p := any(&env.Data).(type) {
	case *string:
		*p = string(resp.Body)
	case *[]byte:
		*p = append([]byte(nil), resp.Body...)
	}
	return env, nil
}
