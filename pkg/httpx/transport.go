package httpx

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitedTransport is an http.RoundTripper that waits for a token from a
// shared bucket before each outbound request, keeping the process under the
// platform's per-app QPS quota. Waiting honours the request context.
type RateLimitedTransport struct {
	// Base is the underlying transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base with a limiter built from config.
func NewRateLimitedTransport(base http.RoundTripper, config RateLimitConfig) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RateLimitedTransport{
		Base:    base,
		limiter: rate.NewLimiter(config.Limit(), config.burst()),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("httpx: rate limit wait: %w", err)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
