// token_refresh.go
// ----------------
// TokenRefreshCoordinator rotates the token pair against the refresh
// endpoint with a process-wide single-flight guarantee: however many calls
// observe an expired token concurrently, exactly one refresh exchange goes
// out and every caller shares its outcome.
package resilientclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshRequest and refreshResponse mirror the refresh endpoint's wire
// contract.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenRefreshCoordinator owns the in-flight refresh slot. The singleflight
// group is the guarded slot: the first caller to find it empty performs the
// exchange, everyone else joining before it settles receives the same
// result, and the slot clears when the call returns.
type TokenRefreshCoordinator struct {
	transport  Transport
	store      TokenStore
	bus        *AuthEventBus
	refreshURL string
	timeout    time.Duration
	logger     *slog.Logger

	group singleflight.Group
}

func NewTokenRefreshCoordinator(transport Transport, store TokenStore, bus *AuthEventBus, refreshURL string, timeout time.Duration, logger *slog.Logger) *TokenRefreshCoordinator {
	return &TokenRefreshCoordinator{
		transport:  transport,
		store:      store,
		bus:        bus,
		refreshURL: refreshURL,
		timeout:    timeout,
		logger:     logger,
	}
}

// Refresh renews the token pair. A nil return means the store now holds a
// usable pair. When the server rejects the exchange (or no refresh token is
// stored) the session is terminated: the store is cleared and
// EventAuthenticationFailed published, once per refresh attempt regardless
// of how many callers shared it. Cancellation, timeouts, and transport
// failures return an error but leave the stored pair untouched.
func (c *TokenRefreshCoordinator) Refresh(ctx context.Context) error {
	_, err, shared := c.group.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	if shared {
		c.logger.Debug("token refresh outcome shared with concurrent caller")
	}
	return err
}

func (c *TokenRefreshCoordinator) doRefresh(ctx context.Context) error {
	pair, err := c.store.Get()
	if err != nil || pair == nil || pair.RefreshToken == "" {
		c.logger.Warn("token refresh impossible: no refresh token")
		return c.fail(http.StatusUnauthorized, "no refresh token")
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: pair.RefreshToken})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}

	req := &WireRequest{
		Method:  http.MethodPost,
		URL:     c.refreshURL,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}

	resp, err := exchangeWithTimeout(ctx, c.transport, req, c.timeout)
	if cerr := classify(resp, err); cerr != nil {
		// A cancelled caller, a timeout, or an unreachable server says
		// nothing about the refresh token. Only a server response
		// rejecting the exchange terminates the session.
		if canceled(cerr) || cerr.Err != nil || cerr.Status == 0 {
			c.logger.Warn("token refresh did not complete", "error", cerr.Message)
			return cerr
		}
		c.logger.Warn("token refresh rejected", "status", cerr.Status, "error", cerr.Message)
		return c.fail(cerr.Status, cerr.Message)
	}

	var renewed refreshResponse
	if err := json.Unmarshal(resp.Body, &renewed); err != nil {
		return c.fail(0, "malformed refresh response")
	}
	if renewed.AccessToken == "" || renewed.RefreshToken == "" {
		return c.fail(0, "refresh response missing tokens")
	}

	if err := c.store.Set(TokenPair{AccessToken: renewed.AccessToken, RefreshToken: renewed.RefreshToken}); err != nil {
		return c.fail(0, fmt.Sprintf("persist renewed tokens: %v", err))
	}

	c.logger.Debug("token pair rotated")
	c.bus.publishTokenRefreshed(renewed.AccessToken)
	return nil
}

// fail terminates the session: clear the pair, publish the failure, and
// report the reason to the caller.
func (c *TokenRefreshCoordinator) fail(status int, message string) error {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("clearing token store after failed refresh", "error", err)
	}
	c.bus.publishAuthenticationFailed(status, message, c.refreshURL)
	return errors.New(message)
}
