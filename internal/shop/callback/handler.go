package callback

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// SuccessMessage is shown in the browser once a code has been captured.
const SuccessMessage = "OK, you can close this tab."

// Grant is an authorization code delivered to the redirect URL.
type Grant struct {
	Code       string
	State      string
	ReceivedAt time.Time
}

// Handler captures the authorization code from the platform's redirect. It
// does not exchange the code; that is left to the caller.
type Handler struct {
	expectedState string
	grants        chan Grant
	now           func() time.Time
}

// NewHandler returns a Handler. When expectedState is non-empty, redirects
// carrying a different state are rejected.
func NewHandler(expectedState string) *Handler {
	return &Handler{
		expectedState: expectedState,
		grants:        make(chan Grant, 1),
		now:           time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		httpx.WriteText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	code := q.Get("auth_code")
	if code == "" {
		code = q.Get("code")
	}
	state := q.Get("state")

	if code == "" {
		log.Warn("redirect without authorization code")
		httpx.WriteText(w, http.StatusBadRequest, "missing auth_code")
		return
	}
	if h.expectedState != "" && subtle.ConstantTimeCompare([]byte(state), []byte(h.expectedState)) != 1 {
		log.Warn("redirect with unexpected state")
		httpx.WriteText(w, http.StatusBadRequest, "state mismatch")
		return
	}

	grant := Grant{Code: code, State: state, ReceivedAt: h.now()}
	select {
	case h.grants <- grant:
		log.Info("authorization code received", "code_fp", cryptox.FingerprintToken(code))
	default:
		log.Warn("authorization code ignored, one is already pending", "code_fp", cryptox.FingerprintToken(code))
	}

	httpx.WriteText(w, http.StatusOK, SuccessMessage)
}

// Wait blocks until a grant arrives or ctx is done.
func (h *Handler) Wait(ctx context.Context) (Grant, error) {
	select {
	case g := <-h.grants:
		return g, nil
	case <-ctx.Done():
		return Grant{}, ctx.Err()
	}
}

// Routes wraps the handler with request logging and per-IP rate limiting.
func (h *Handler) Routes(logger *slog.Logger, limit httpx.RateLimitConfig) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", h)
	return httpx.Chain(mux,
		slogx.HTTPMiddleware(logger),
		httpx.RateLimitByIP(limit),
	)
}
