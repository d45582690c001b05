package shopsdk

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultRefreshURL is the platform's token refresh endpoint.
	DefaultRefreshURL = "https://auth.tiktok-shops.com/api/v2/token/refresh"

	// DefaultBaseURL is the platform's business API host.
	DefaultBaseURL = "https://open-api.tiktokglobalshop.com"

	// DefaultVersion is the API version sent with every call unless omitted.
	DefaultVersion = "202309"

	// DefaultTokenHeader carries the access token on business calls.
	DefaultTokenHeader = "x-tts-access-token"

	// DefaultRefreshMargin is how long before expiry a token is refreshed.
	DefaultRefreshMargin = 600 * time.Second

	// DefaultLifetime is assumed when the token endpoint declares none.
	DefaultLifetime = 3600 * time.Second

	// DefaultTimeout bounds each outbound HTTP call.
	DefaultTimeout = 60 * time.Second
)

// Option configures a TokenManager or a Client.
type Option func(*options)

type options struct {
	now             func() time.Time
	httpClient      *http.Client
	logger          *slog.Logger
	refreshURL      string
	margin          time.Duration
	defaultLifetime time.Duration
	bootstrap       TokenState
}

func defaultOptions() options {
	return options{
		now:             time.Now,
		httpClient:      &http.Client{Timeout: DefaultTimeout},
		logger:          slog.Default(),
		refreshURL:      DefaultRefreshURL,
		margin:          DefaultRefreshMargin,
		defaultLifetime: DefaultLifetime,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces the wall clock. Tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHTTPClient sets the HTTP client used for outbound calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRefreshURL overrides the token refresh endpoint.
func WithRefreshURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.refreshURL = u
		}
	}
}

// WithRefreshMargin sets how long before expiry a token is refreshed.
func WithRefreshMargin(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.margin = d
		}
	}
}

// WithDefaultLifetime sets the lifetime assumed when the token endpoint
// declares none.
func WithDefaultLifetime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultLifetime = d
		}
	}
}

// WithBootstrap supplies tokens from configuration. They are used when the
// store holds no record, and the refresh token fills a stored record that
// lacks one.
func WithBootstrap(accessToken, refreshToken string) Option {
	return func(o *options) {
		o.bootstrap = TokenState{AccessToken: accessToken, RefreshToken: refreshToken}
	}
}
