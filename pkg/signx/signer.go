package signx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SignKey is the query parameter that carries the signature. It is never part
// of the canonical form.
const SignKey = "sign"

var (
	// ErrMissingSecret is returned when a Signer is built without an app secret.
	ErrMissingSecret = errors.New("signx: app secret is required")

	// ErrUnknownScheme is returned by ParseScheme for unrecognised names.
	ErrUnknownScheme = errors.New("signx: unknown signing scheme")
)

// Params is a query-parameter mapping. Keys are unique by construction.
type Params map[string]string

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// sortedKeys returns the keys of p in ascending byte order, skipping SignKey.
func (p Params) sortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		if k == SignKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonicalizer renders a path and its query parameters into the text that
// precedes the body in the sign text.
type Canonicalizer interface {
	Name() string
	Canonicalize(path string, params Params) string
}

type concat struct{}

func (concat) Name() string { return "concat" }

// Canonicalize writes path followed by key+value pairs with no separators.
func (concat) Canonicalize(path string, params Params) string {
	var b strings.Builder
	b.WriteString(path)
	for _, k := range params.sortedKeys() {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	return b.String()
}

type ampersand struct{}

func (ampersand) Name() string { return "ampersand" }

// Canonicalize writes path?k1=v1&k2=v2. Values are not URL-encoded.
func (ampersand) Canonicalize(path string, params Params) string {
	keys := params.sortedKeys()
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return path + "?" + strings.Join(pairs, "&")
}

var (
	// Concat joins sorted keys and values directly: path k1v1k2v2.
	Concat Canonicalizer = concat{}

	// Ampersand joins sorted pairs as a query string: path?k1=v1&k2=v2.
	Ampersand Canonicalizer = ampersand{}
)

// Scheme pairs a canonicalization with the secret-wrapping convention.
type Scheme struct {
	Name          string
	Canonicalizer Canonicalizer
	// WrapSecret places the secret before and after the sign text. Both
	// variants HMAC with the secret as key.
	WrapSecret bool
}

var (
	SchemeConcat           = Scheme{Name: "concat", Canonicalizer: Concat, WrapSecret: true}
	SchemeConcatBare       = Scheme{Name: "concat-bare", Canonicalizer: Concat}
	SchemeAmpersand        = Scheme{Name: "ampersand", Canonicalizer: Ampersand}
	SchemeAmpersandWrapped = Scheme{Name: "ampersand-wrapped", Canonicalizer: Ampersand, WrapSecret: true}
)

// Schemes lists every supported scheme in a stable order.
func Schemes() []Scheme {
	return []Scheme{SchemeConcat, SchemeConcatBare, SchemeAmpersand, SchemeAmpersandWrapped}
}

// ParseScheme resolves a configured scheme name. The empty string selects
// SchemeConcat.
func ParseScheme(name string) (Scheme, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return SchemeConcat, nil
	}
	for _, s := range Schemes() {
		if s.Name == name {
			return s, nil
		}
	}
	return Scheme{}, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}

// Result is the outcome of signing one request.
type Result struct {
	// Signature is the lowercase hex HMAC-SHA256 digest.
	Signature string

	// Canonical is the path and parameter part of the sign text. It never
	// contains the secret and is safe to log.
	Canonical string
}

// Signer computes request signatures for one app secret. It holds no mutable
// state and reads no clock; time-variant parameters arrive inside params.
type Signer struct {
	secret []byte
	scheme Scheme
}

// New creates a Signer for the given secret and scheme.
func New(secret string, scheme Scheme) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if scheme.Canonicalizer == nil {
		scheme = SchemeConcat
	}
	return &Signer{secret: []byte(secret), scheme: scheme}, nil
}

// Scheme reports the scheme this signer uses.
func (s *Signer) Scheme() Scheme { return s.scheme }

// Sign signs path, params and an already canonical body (see CanonicalBody).
// A nil body is treated as the empty string. The sign key in params is ignored.
func (s *Signer) Sign(path string, params Params, body []byte) Result {
	canonical := s.scheme.Canonicalizer.Canonicalize(path, params)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(s.signText(canonical, body)))

	return Result{
		Signature: hex.EncodeToString(mac.Sum(nil)),
		Canonical: canonical,
	}
}

func (s *Signer) signText(canonical string, body []byte) string {
	var b strings.Builder
	if s.scheme.WrapSecret {
		b.Write(s.secret)
	}
	b.WriteString(canonical)
	b.Write(body)
	if s.scheme.WrapSecret {
		b.Write(s.secret)
	}
	return b.String()
}
