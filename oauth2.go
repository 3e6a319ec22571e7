package resilientclient

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource adapts the client's token store and refresh coordinator to
// the golang.org/x/oauth2 TokenSource interface, for interop with SDKs that
// accept one. The source shares the client's single-flight refresh, so
// mixing it with direct client calls never duplicates refresh traffic.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &storeTokenSource{c: c, ctx: ctx}
}

type storeTokenSource struct {
	c   *Client
	ctx context.Context
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	pair, err := s.c.store.Get()
	if err != nil {
		return nil, err
	}

	if pair.ExpiresWithin(s.c.cfg.TokenExpiryLeeway) {
		if err := s.c.refresher.Refresh(s.ctx); err != nil {
			return nil, err
		}
		if pair, err = s.c.store.Get(); err != nil {
			return nil, err
		}
	}

	return &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}
