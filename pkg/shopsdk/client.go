package shopsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/signx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// ClientConfig describes the app and shop a Client calls on behalf of.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	AppKey    string
	AppSecret string

	// ShopCipher and ShopID identify the shop. At most one may be set.
	ShopCipher string
	ShopID     string

	// Version defaults to DefaultVersion.
	Version string

	// TokenHeader defaults to DefaultTokenHeader.
	TokenHeader string

	// Scheme selects the signing convention; the zero value is signx.SchemeConcat.
	Scheme signx.Scheme
}

// Client issues signed calls against the business API. It obtains tokens
// from a TokenManager and, when the platform reports the token expired,
// refreshes once and retries the identical signed request once.
type Client struct {
	cfg        ClientConfig
	tokens     *TokenManager
	signer     *signx.Signer
	httpClient *http.Client
	now        func() time.Time
	log        *slog.Logger
}

// NewClient creates a Client. tokens must belong to the same app as cfg.
func NewClient(cfg ClientConfig, tokens *TokenManager, opts ...Option) (*Client, error) {
	if missing := (Credentials{AppKey: cfg.AppKey, AppSecret: cfg.AppSecret}).missing(); len(missing) > 0 {
		return nil, &MissingCredentialsError{Missing: missing}
	}
	if cfg.ShopCipher != "" && cfg.ShopID != "" {
		return nil, ErrShopConflict
	}
	if tokens == nil {
		return nil, fmt.Errorf("shopsdk: token manager is required")
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = DefaultTokenHeader
	}

	signer, err := signx.New(cfg.AppSecret, cfg.Scheme)
	if err != nil {
		return nil, fmt.Errorf("shopsdk: %w", err)
	}

	o := applyOptions(opts)
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		signer:     signer,
		httpClient: o.httpClient,
		now:        o.now,
		log:        o.logger.With("component", "shop_client"),
	}, nil
}

// Tokens returns the TokenManager backing the client.
func (c *Client) Tokens() *TokenManager { return c.tokens }

// Get issues a signed GET.
func (c *Client) Get(ctx context.Context, path string, query signx.Params) (*APIResponse, error) {
	return c.Call(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a signed POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, query signx.Params) (*APIResponse, error) {
	return c.Call(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Query: query})
}

// Call signs and issues req. A 2xx response is returned parsed. A response
// signalling token expiry triggers one refresh and one retry of the same
// signed URL with the new token; any other failure is a RequestFailedError.
func (c *Client) Call(ctx context.Context, req Request) (*APIResponse, error) {
	ctx, log := slogx.WithCallID(ctx, c.log, "path", req.Path)

	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	signedURL, body, err := c.build(req)
	if err != nil {
		return nil, err
	}
	method := requestMethod(req)

	status, raw, err := c.send(ctx, method, signedURL, body, token)
	if err != nil {
		return nil, err
	}
	if isSuccess(status) {
		log.Debug("call succeeded", "status", status)
		return parseAPIResponse(raw)
	}
	if !isExpirySignal(status, raw) || req.NoRetry {
		log.Warn("call rejected", "status", status)
		return nil, requestFailed(status, raw, false)
	}

	log.Info("access token rejected as expired, refreshing", "status", status)
	token, err = c.tokens.refreshRejected(ctx, token)
	if err != nil {
		return nil, err
	}

	status, raw, err = c.send(ctx, method, signedURL, body, token)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		log.Warn("retry after refresh rejected", "status", status)
		return nil, requestFailed(status, raw, true)
	}
	return parseAPIResponse(raw)
}

// Sign computes the signed query for req without sending it. The result
// includes the sign parameter.
func (c *Client) Sign(req Request) (signx.Params, signx.Result, error) {
	params, _, res, err := c.sign(req)
	return params, res, err
}

func (c *Client) sign(req Request) (signx.Params, []byte, signx.Result, error) {
	params, err := c.params(req)
	if err != nil {
		return nil, nil, signx.Result{}, err
	}
	body, err := signx.CanonicalBody(req.Body)
	if err != nil {
		return nil, nil, signx.Result{}, fmt.Errorf("shopsdk: encode body: %w", err)
	}

	res := c.signer.Sign(req.Path, params, body)
	params[signx.SignKey] = res.Signature
	return params, body, res, nil
}

func (c *Client) params(req Request) (signx.Params, error) {
	p := signx.Params{
		"app_key":     c.cfg.AppKey,
		"sign_method": "HMAC-SHA256",
		"timestamp":   strconv.FormatInt(c.now().Unix(), 10),
	}
	if !req.OmitVersion {
		p["version"] = c.cfg.Version
	}
	if !req.OmitShop {
		switch {
		case c.cfg.ShopCipher != "":
			p["shop_cipher"] = c.cfg.ShopCipher
		case c.cfg.ShopID != "":
			p["shop_id"] = c.cfg.ShopID
		default:
			return nil, &MissingCredentialsError{Missing: []string{"shop_cipher or shop_id"}}
		}
	}
	for k, v := range req.Query {
		if k == signx.SignKey {
			continue
		}
		p[k] = v
	}
	return p, nil
}

// build returns the signed URL and the body; the canonical body is also the
// wire form.
func (c *Client) build(req Request) (string, []byte, error) {
	params, body, _, err := c.sign(req)
	if err != nil {
		return "", nil, err
	}

	q := make(url.Values, len(params))
	for k, v := range params {
		q.Set(k, v)
	}
	return c.cfg.BaseURL + req.Path + "?" + q.Encode(), body, nil
}

func (c *Client) send(ctx context.Context, method, signedURL string, body []byte, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, signedURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("shopsdk: create request: %w", err)
	}
	req.Header.Set(c.cfg.TokenHeader, token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	status, raw, err := doRequest(c.httpClient, req)
	if err != nil {
		return 0, nil, fmt.Errorf("shopsdk: send request: %w", err)
	}
	return status, raw, nil
}

func requestMethod(req Request) string {
	if req.Method != "" {
		return strings.ToUpper(req.Method)
	}
	if req.Body != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

func parseAPIResponse(raw []byte) (*APIResponse, error) {
	resp := &APIResponse{Raw: raw}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, fmt.Errorf("shopsdk: decode response: %w", err)
	}
	return resp, nil
}
