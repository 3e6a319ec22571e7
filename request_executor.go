// request_executor.go
// -------------------
// RequestExecutor drives one logical call end to end: build the wire
// request, attach the bearer token, race the exchange against a timeout,
// classify the outcome, and decide between returning, backing off for a
// retry, or refreshing the session and re-issuing the call once.
//
// The retry/refresh interaction is an explicit state machine rather than
// loop-and-continue control flow, so each transition can be audited and
// tested on its own:
//
//	statePending ──► stateRetrying ──► stateDone | stateFailed
//	      │               ▲    │
//	      └► stateRefreshingAuth┘
package resilientclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stridetrack/resilient-client/internal/timeparse"
)

type execState int

const (
	statePending execState = iota
	stateRetrying
	stateRefreshingAuth
	stateDone
	stateFailed
)

// RequestExecutor handles retry logic, backoff, timeout enforcement, and the
// 401 refresh-and-retry-once handshake.
type RequestExecutor struct {
	transport Transport
	store     TokenStore
	bus       *AuthEventBus
	refresher *TokenRefreshCoordinator
	cfg       Config
	logger    *slog.Logger
}

func NewRequestExecutor(transport Transport, store TokenStore, bus *AuthEventBus, refresher *TokenRefreshCoordinator, cfg Config, logger *slog.Logger) *RequestExecutor {
	return &RequestExecutor{
		transport: transport,
		store:     store,
		bus:       bus,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Do executes req and returns the raw successful response. On any terminal
// failure it returns exactly one *APIError.
func (re *RequestExecutor) Do(ctx context.Context, req *Request) (*WireResponse, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = re.cfg.Timeout
	}
	if timeout < 0 {
		return nil, &APIError{Message: "request timeout must not be negative"}
	}

	retries := *re.cfg.MaxRetries
	if req.Retries != nil {
		retries = *req.Retries
	}
	if retries < 0 {
		return nil, &APIError{Message: "retry count must not be negative"}
	}

	baseDelay := req.RetryDelay
	if baseDelay == 0 {
		baseDelay = re.cfg.RetryDelay
	}

	url := resolveURL(re.cfg.BaseURL, req.URL)
	authPath := re.isAuthPath(req.URL)
	attachToken := !req.SkipAuth

	if req.RequiresAuth && attachToken {
		if pair, err := re.store.Get(); err != nil || pair.AccessToken == "" {
			return nil, &APIError{
				Message: "Authentication required. Please sign in",
				Status:  http.StatusUnauthorized,
			}
		}
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, &APIError{Message: "encode request body: " + err.Error(), Err: err}
	}

	// refreshed guards the retry-once rule: at most one refresh attempt,
	// proactive or 401-driven, per logical call.
	refreshed := false

	if attachToken && !authPath {
		if pair, err := re.store.Get(); err == nil && pair.ExpiresWithin(re.cfg.TokenExpiryLeeway) {
			re.logger.Debug("access token near expiry, refreshing before send", "url", url)
			refreshed = true
			if rerr := re.refresher.Refresh(ctx); rerr != nil {
				return nil, &APIError{
					Message: authFailureMessage(rerr.Error()),
					Status:  http.StatusUnauthorized,
					Err:     rerr,
				}
			}
		}
	}

	attempt := 0
	var result *WireResponse
	var lastErr *APIError
	var sentToken string

	state := statePending
	for state != stateDone && state != stateFailed {
		switch state {
		case statePending, stateRetrying:
			// Headers are rebuilt each attempt: the token may have rotated
			// since the previous one.
			var wire *WireRequest
			wire, sentToken = re.buildWireRequest(req, url, body, contentType, attachToken)

			re.logger.Debug("sending request", "method", wire.Method, "url", url, "attempt", attempt+1)
			resp, err := exchangeWithTimeout(ctx, re.transport, wire, timeout)
			cerr := classify(resp, err)
			if cerr == nil {
				result = resp
				state = stateDone
				break
			}
			lastErr = cerr

			switch {
			case canceled(cerr):
				state = stateFailed

			case cerr.Status == http.StatusUnauthorized && !authPath && !refreshed && attachToken:
				state = stateRefreshingAuth

			case cerr.Status == http.StatusUnauthorized:
				// Either the refresh already ran for this call or the call
				// targets an auth endpoint. No refresh attempt exists to
				// own the failure event, so it is published here. A 401 on
				// a SkipAuth call outside the auth paths carried no token
				// and does not end the session.
				if attachToken || authPath {
					re.terminateSession(url, cerr)
				}
				lastErr = &APIError{
					Message: authFailureMessage(cerr.Message),
					Status:  http.StatusUnauthorized,
					RawBody: cerr.RawBody,
					Headers: cerr.Headers,
				}
				state = stateFailed

			case retryableStatus[cerr.Status] && attempt < retries:
				wait := re.backoffFor(baseDelay, attempt, cerr)
				re.logger.Debug("transient failure, backing off",
					"status", cerr.Status, "wait", wait, "attempt", attempt+1, "max", retries)
				if err := sleepCtx(ctx, wait); err != nil {
					lastErr = &APIError{Message: "request canceled during backoff", Err: err}
					state = stateFailed
					break
				}
				attempt++
				state = stateRetrying

			default:
				lastErr = humanize(cerr)
				state = stateFailed
			}

		case stateRefreshingAuth:
			refreshed = true
			// If the pair already rotated since the failed attempt (another
			// caller won the refresh), retrying with the current token is
			// enough; a second refresh would be a duplicate.
			if pair, err := re.store.Get(); err == nil && pair.AccessToken != "" && pair.AccessToken != sentToken {
				re.logger.Debug("token already rotated by concurrent refresh, retrying", "url", url)
				state = stateRetrying
				break
			}
			if rerr := re.refresher.Refresh(ctx); rerr != nil {
				if ctx.Err() != nil {
					lastErr = &APIError{Message: "request canceled during token refresh", Err: ctx.Err()}
					state = stateFailed
					break
				}
				// For a server rejection the coordinator has already
				// cleared the store and published the failure.
				lastErr = &APIError{
					Message: authFailureMessage(lastErr.Message),
					Status:  http.StatusUnauthorized,
					RawBody: lastErr.RawBody,
					Headers: lastErr.Headers,
					Err:     rerr,
				}
				state = stateFailed
				break
			}
			// Retry the original call once; the refresh does not consume
			// the retry budget.
			re.logger.Debug("session refreshed, retrying original request", "url", url)
			state = stateRetrying
		}
	}

	if state == stateFailed {
		re.logger.Warn("request failed", "method", req.Method, "url", url,
			"status", lastErr.Status, "error", lastErr.Message)
		return nil, lastErr
	}
	return result, nil
}

// buildWireRequest assembles one attempt, re-reading the store so a pair
// rotated mid-call is always picked up. It reports the token it attached so
// the 401 path can tell a stale token from a fresh one.
func (re *RequestExecutor) buildWireRequest(req *Request, url string, body []byte, contentType string, attachToken bool) (*WireRequest, string) {
	headers := copyHeaders(req.Headers)
	if contentType != "" && headerValue(headers, "Content-Type") == "" {
		headers["Content-Type"] = contentType
	}
	var token string
	if attachToken {
		if pair, err := re.store.Get(); err == nil && pair.AccessToken != "" {
			token = pair.AccessToken
			headers["Authorization"] = "Bearer " + token
		}
	}
	return &WireRequest{Method: req.Method, URL: url, Headers: headers, Body: body}, token
}

// backoffFor computes the wait before the next attempt: a Retry-After header
// on a 429/503 wins when present, otherwise the exponential schedule
// baseDelay * 2^attempt. Both are capped at Config.MaxBackoff.
func (re *RequestExecutor) backoffFor(baseDelay time.Duration, attempt int, cerr *APIError) time.Duration {
	if cerr.Status == http.StatusTooManyRequests || cerr.Status == http.StatusServiceUnavailable {
		if v := headerValue(cerr.Headers, "Retry-After"); v != "" {
			if d := timeparse.RetryAfter(v, time.Now()); d > 0 {
				return min(d, re.cfg.MaxBackoff)
			}
		}
	}
	return min(baseDelay*(1<<attempt), re.cfg.MaxBackoff)
}

// terminateSession handles a 401 for which no refresh will be attempted.
func (re *RequestExecutor) terminateSession(url string, cerr *APIError) {
	if err := re.store.Clear(); err != nil {
		re.logger.Error("clearing token store after 401", "error", err)
	}
	re.bus.publishAuthenticationFailed(cerr.Status, cerr.Message, url)
}

func (re *RequestExecutor) isAuthPath(url string) bool {
	path := stripBase(re.cfg.BaseURL, url)
	for _, prefix := range re.cfg.AuthPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// encodeBody serializes a structured body to JSON. Raw forms ([]byte,
// json.RawMessage) pass through unchanged with no Content-Type override.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case json.RawMessage:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

type exchangeResult struct {
	resp *WireResponse
	err  error
}

// exchangeWithTimeout races one exchange against a timer. The losing
// exchange is abandoned, not cancelled: its result is simply never read
// (the channel is buffered so the goroutine still exits).
func exchangeWithTimeout(ctx context.Context, t Transport, req *WireRequest, timeout time.Duration) (*WireResponse, error) {
	ch := make(chan exchangeResult, 1)
	go func() {
		resp, err := t.Exchange(req)
		ch <- exchangeResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err == nil && r.resp != nil && r.resp.StatusCode >= 200 && r.resp.StatusCode < 300 {
			// Malformed JSON on a success response is a transport-class
			// failure and retried as such. Error statuses keep their body
			// and status; message extraction falls back to the status text.
			if ct := headerValue(r.resp.Headers, "Content-Type"); ct != "" &&
				len(r.resp.Body) > 0 && isJSONContentType(ct) && !json.Valid(r.resp.Body) {
				return nil, &APIError{Message: "Network error: malformed response body", Status: 0}
			}
		}
		return r.resp, r.err
	case <-timer.C:
		return nil, errExchangeTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func isJSONContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "application/json")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveURL joins a relative path onto the base URL; absolute URLs pass
// through.
func resolveURL(base, url string) string {
	if base == "" || strings.Contains(url, "://") {
		return url
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(url, "/")
}

func stripBase(base, url string) string {
	if base != "" {
		return strings.TrimPrefix(url, strings.TrimSuffix(base, "/"))
	}
	return url
}
