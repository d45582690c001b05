package shopsdk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/signx"
)

// ============================================================================
// Token state
// ============================================================================

// TokenState is the persisted credential record for one shop. Empty strings
// mean absent; ExpiresAt is unix seconds and 0 means unknown.
type TokenState struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// TokenStatus is the observed condition of a TokenState at a point in time.
type TokenStatus int

const (
	StatusNoToken TokenStatus = iota
	StatusValid
	StatusNearExpiry
	StatusExpired
)

func (s TokenStatus) String() string {
	switch s {
	case StatusNoToken:
		return "no_token"
	case StatusValid:
		return "valid"
	case StatusNearExpiry:
		return "near_expiry"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("TokenStatus(%d)", int(s))
	}
}

// Status derives the condition of the state at now. A token with unknown
// expiry counts as valid; the platform rejecting it is what triggers a
// refresh in that case.
func (t TokenState) Status(now time.Time, margin time.Duration) TokenStatus {
	if t.AccessToken == "" {
		return StatusNoToken
	}
	if t.ExpiresAt == 0 {
		return StatusValid
	}

	sec := now.Unix()
	switch {
	case sec >= t.ExpiresAt:
		return StatusExpired
	case sec >= t.ExpiresAt-int64(margin/time.Second):
		return StatusNearExpiry
	default:
		return StatusValid
	}
}

// Expiry returns ExpiresAt as a time, or the zero time when unknown.
func (t TokenState) Expiry() time.Time {
	if t.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(t.ExpiresAt, 0)
}

// ============================================================================
// Signed calls
// ============================================================================

// Request describes one signed business call.
type Request struct {
	// Method defaults to GET without a body and POST with one.
	Method string

	// Path is the API path, e.g. "/order/202309/orders/search".
	Path string

	// Body is sent as minified JSON and covered by the signature. It may be a
	// json.RawMessage, a []byte holding JSON, or any marshalable value.
	Body any

	// Query holds extra query parameters. They are signed alongside the
	// common parameters and override them on key collision.
	Query signx.Params

	// OmitShop leaves out shop_cipher/shop_id, for app-level endpoints such
	// as /authorization/202309/shops.
	OmitShop bool

	// OmitVersion leaves out the version parameter.
	OmitVersion bool

	// NoRetry reports an expiry signal as RequestFailedError instead of
	// refreshing and retrying.
	NoRetry bool
}

// APIResponse is the platform's response envelope.
type APIResponse struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`

	// Raw is the undecoded response body.
	Raw []byte `json:"-"`
}

// Decode unmarshals the data field into v.
func (r *APIResponse) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("shopsdk: decode data: %w", err)
	}
	return nil
}

// refreshResponse is the token endpoint payload, either at the top level or
// nested under "data".
type refreshResponse struct {
	AccessToken         string      `json:"access_token"`
	RefreshToken        string      `json:"refresh_token"`
	AccessTokenExpireIn json.Number `json:"access_token_expire_in"`
	ExpireIn            json.Number `json:"expire_in"`
}

// lifetime returns the declared access token lifetime in seconds, or 0 when
// the payload declares none.
func (r refreshResponse) lifetime() int64 {
	for _, n := range []json.Number{r.AccessTokenExpireIn, r.ExpireIn} {
		if n == "" {
			continue
		}
		if v, err := n.Int64(); err == nil {
			return v
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	}
	return 0
}
