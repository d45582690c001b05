package shopsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
)

// Credentials identify the app to the platform.
type Credentials struct {
	AppKey    string
	AppSecret string
}

func (c Credentials) missing() []string {
	var m []string
	if c.AppKey == "" {
		m = append(m, "app_key")
	}
	if c.AppSecret == "" {
		m = append(m, "app_secret")
	}
	return m
}

// TokenManager keeps one shop's access token valid. It is safe for concurrent
// use; the decision to refresh and the refresh itself are serialised, so
// callers arriving while a refresh is in flight wait and then observe its
// result instead of starting another one.
type TokenManager struct {
	creds           Credentials
	store           TokenStore
	httpClient      *http.Client
	refreshURL      string
	margin          time.Duration
	defaultLifetime time.Duration
	now             func() time.Time
	log             *slog.Logger

	mu    sync.Mutex
	state TokenState
}

// NewTokenManager loads the shop's state from store, falling back to the
// bootstrap tokens when the store has no usable record.
func NewTokenManager(ctx context.Context, creds Credentials, store TokenStore, opts ...Option) (*TokenManager, error) {
	if missing := creds.missing(); len(missing) > 0 {
		return nil, &MissingCredentialsError{Missing: missing}
	}
	if store == nil {
		store = NewMemoryStore()
	}

	o := applyOptions(opts)
	m := &TokenManager{
		creds:           creds,
		store:           store,
		httpClient:      o.httpClient,
		refreshURL:      o.refreshURL,
		margin:          o.margin,
		defaultLifetime: o.defaultLifetime,
		now:             o.now,
		log:             o.logger.With("component", "token_manager"),
	}
	m.state = m.loadState(ctx, o.bootstrap)
	return m, nil
}

func (m *TokenManager) loadState(ctx context.Context, bootstrap TokenState) TokenState {
	state, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrStateNotFound):
		m.log.Debug("no stored token state, using configured tokens")
		return bootstrap
	case err != nil:
		m.log.Warn("stored token state unusable, using configured tokens", "error", err)
		return bootstrap
	}

	if state.RefreshToken == "" {
		state.RefreshToken = bootstrap.RefreshToken
	}
	m.log.Debug("token state loaded",
		"access_fp", cryptox.FingerprintToken(state.AccessToken),
		"expires_at", state.ExpiresAt,
	)
	return state
}

// State returns a snapshot of the current token state.
func (m *TokenManager) State() TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status reports the condition of the current token.
func (m *TokenManager) Status() TokenStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status(m.now(), m.margin)
}

// GetValidToken returns an access token that is not within the refresh margin
// of its expiry, refreshing first when needed. A token with unknown expiry is
// returned as is.
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	state, err := m.validState(ctx)
	if err != nil {
		return "", err
	}
	return state.AccessToken, nil
}

func (m *TokenManager) validState(ctx context.Context) (TokenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Status(m.now(), m.margin) {
	case StatusValid:
		return m.state, nil
	case StatusNoToken:
		if m.state.RefreshToken == "" {
			return TokenState{}, &MissingCredentialsError{Missing: []string{"access_token", "refresh_token"}}
		}
	}

	return m.refreshLocked(ctx)
}

// RefreshNow exchanges the refresh token for a new access token regardless of
// the current token's expiry, persists the result and returns it.
func (m *TokenManager) RefreshNow(ctx context.Context) (TokenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshLocked(ctx)
}

// refreshRejected handles a token the platform refused. If another caller
// already replaced the rejected token, the replacement is returned without a
// new refresh.
func (m *TokenManager) refreshRejected(ctx context.Context, rejected string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.AccessToken != "" && m.state.AccessToken != rejected &&
		m.state.Status(m.now(), m.margin) == StatusValid {
		return m.state.AccessToken, nil
	}

	state, err := m.refreshLocked(ctx)
	if err != nil {
		return "", err
	}
	return state.AccessToken, nil
}

// refreshLocked must be called with m.mu held. The new state is persisted
// before it becomes visible; on any failure the current state is untouched.
func (m *TokenManager) refreshLocked(ctx context.Context) (TokenState, error) {
	if m.state.RefreshToken == "" {
		return TokenState{}, &MissingRefreshTokenError{}
	}

	m.log.Info("refreshing access token",
		"access_fp", cryptox.FingerprintToken(m.state.AccessToken),
		"expires_at", m.state.ExpiresAt,
	)

	resp, err := m.requestRefresh(ctx, m.state.RefreshToken)
	if err != nil {
		m.log.Error("access token refresh failed", "error", err)
		return TokenState{}, err
	}

	lifetime := resp.lifetime()
	if lifetime <= 0 {
		lifetime = int64(m.defaultLifetime / time.Second)
	}

	next := TokenState{
		AccessToken:  resp.AccessToken,
		RefreshToken: m.state.RefreshToken,
		ExpiresAt:    m.now().Unix() + lifetime,
	}
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}

	rotated := next.RefreshToken != m.state.RefreshToken

	if err := m.store.Save(ctx, next); err != nil {
		m.log.Error("persisting refreshed token failed", "error", err)
		return TokenState{}, fmt.Errorf("shopsdk: persist token state: %w", err)
	}
	m.state = next

	m.log.Info("access token refreshed",
		"access_fp", cryptox.FingerprintToken(next.AccessToken),
		"refresh_rotated", rotated,
		"expires_at", next.ExpiresAt,
	)
	return next, nil
}
