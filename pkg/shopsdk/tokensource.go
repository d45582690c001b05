package shopsdk

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource adapts the manager to oauth2.TokenSource. Each Token call goes
// through GetValidToken, so the returned token is refreshed when needed. The
// refresh token is not exposed.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *TokenManager
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	state, err := s.m.validState(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: state.AccessToken,
		Expiry:      state.Expiry(),
	}, nil
}
