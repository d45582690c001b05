package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/shop/app"
	"github.com/aussiebroadwan/shopauth/internal/shop/callback"
	"github.com/aussiebroadwan/shopauth/internal/shop/orders"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	"github.com/aussiebroadwan/shopauth/pkg/signx"
)

// DiagPath lists authorized shops; it needs no shop parameter.
const DiagPath = "/authorization/202309/shops"

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return usagef("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

func open(ctx context.Context, cfg app.Config) (*app.Application, error) {
	return app.New(ctx, cfg, app.NewLogger(cfg))
}

// tokenSummary is printed instead of the raw token.
type tokenSummary struct {
	AccessToken  string `json:"access_token_fingerprint"`
	RefreshToken string `json:"refresh_token_fingerprint,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    string `json:"expires_in,omitempty"`
	Status       string `json:"status"`
}

func summarize(state shopsdk.TokenState, status shopsdk.TokenStatus, now time.Time) tokenSummary {
	s := tokenSummary{
		AccessToken:  cryptox.FingerprintToken(state.AccessToken),
		RefreshToken: cryptox.FingerprintToken(state.RefreshToken),
		ExpiresAt:    state.ExpiresAt,
		Status:       status.String(),
	}
	if state.ExpiresAt > 0 {
		s.ExpiresIn = state.Expiry().Sub(now).Round(time.Second).String()
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runToken(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("token")
	raw := fs.Bool("raw", false, "print the access token itself")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	token, err := a.Tokens().GetValidToken(ctx)
	if err != nil {
		return err
	}
	if *raw {
		_, err := fmt.Fprintln(stdout, token)
		return err
	}
	return writeJSON(stdout, summarize(a.Tokens().State(), a.Tokens().Status(), time.Now()))
}

func runRefresh(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("refresh")
	fs.StringVar(&cfg.AppKey, "app-key", cfg.AppKey, "app key (overrides TTS_APP_KEY)")
	fs.StringVar(&cfg.AppSecret, "app-secret", cfg.AppSecret, "app secret (overrides TTS_APP_SECRET)")
	refreshToken := fs.String("refresh-token", "", "refresh token to use instead of the stored one")
	writeEnv := fs.String("write-env", "", "also write the new tokens into this dotenv file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	if *refreshToken != "" {
		// The stored refresh token wins over configuration, so the explicit
		// one is saved first and the application reopened on it.
		seedErr := seedRefreshToken(ctx, a, *refreshToken)
		_ = a.Close()
		if seedErr != nil {
			return seedErr
		}
		if a, err = open(ctx, cfg); err != nil {
			return err
		}
	}
	defer a.Close()

	state, err := a.Tokens().RefreshNow(ctx)
	if err != nil {
		return err
	}
	if *writeEnv != "" {
		if err := app.WriteEnvTokens(*writeEnv, state); err != nil {
			return err
		}
		a.Logger().Info("tokens written to dotenv file", "path", *writeEnv)
	}
	return writeJSON(stdout, summarize(state, a.Tokens().Status(), time.Now()))
}

func seedRefreshToken(ctx context.Context, a *app.Application, refreshToken string) error {
	state := a.Tokens().State()
	state.RefreshToken = refreshToken
	if err := a.Store().Save(ctx, state); err != nil {
		return fmt.Errorf("seed refresh token: %w", err)
	}
	return nil
}

// bindShopFlags registers the flags that select the app and shop, so a
// command can run for any shop without a dotenv file. The returned func
// applies the shop selection after parsing.
func bindShopFlags(fs *flag.FlagSet, cfg *app.Config) func() error {
	fs.StringVar(&cfg.AppKey, "app-key", cfg.AppKey, "app key (overrides TTS_APP_KEY)")
	fs.StringVar(&cfg.AppSecret, "app-secret", cfg.AppSecret, "app secret (overrides TTS_APP_SECRET)")
	shopID := fs.String("shop-id", "", "shop id (excludes --shop-cipher)")
	shopCipher := fs.String("shop-cipher", "", "shop cipher (excludes --shop-id)")
	fs.StringVar(&cfg.AccessToken, "access-token", cfg.AccessToken, "bootstrap access token")
	fs.StringVar(&cfg.RefreshToken, "refresh-token", cfg.RefreshToken, "bootstrap refresh token")
	fs.StringVar(&cfg.BaseURL, "base", cfg.BaseURL, "business API host (overrides TTS_BASE)")
	fs.StringVar(&cfg.TokenState, "token-state", cfg.TokenState, "token state path (overrides TTS_TOKEN_STATE)")

	return func() error {
		switch {
		case *shopID != "" && *shopCipher != "":
			return usagef("--shop-id and --shop-cipher are mutually exclusive")
		case *shopID != "":
			cfg.ShopID, cfg.ShopCipher = *shopID, ""
		case *shopCipher != "":
			cfg.ShopCipher, cfg.ShopID = *shopCipher, ""
		}
		return nil
	}
}

func runOrders(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("orders")
	applyShop := bindShopFlags(fs, &cfg)
	mode := fs.String("mode", "today", "window: today, range or 7days")
	ge := fs.Int64("ge", 0, "range start, unix seconds inclusive (mode=range)")
	lt := fs.Int64("lt", 0, "range end, unix seconds exclusive (mode=range)")
	pageSize := fs.Int("page-size", orders.DefaultPageSize, "orders per page")
	out := fs.String("out", "", "output file (default: stdout for today, orders_YYYYMMDD_HHMMSS.json otherwise)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := applyShop(); err != nil {
		return err
	}

	now := time.Now()
	window, err := orderWindow(*mode, *ge, *lt, now, cfg.Zone())
	if err != nil {
		return err
	}

	a, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	found, err := a.Orders().SearchByCreated(ctx, window, *pageSize)
	if err != nil {
		return err
	}
	raw, err := orders.EncodeJSON(found)
	if err != nil {
		return err
	}

	path := ordersOutput(*out, *mode, now, cfg.Zone())
	if path == "" {
		_, err := stdout.Write(append(raw, '\n'))
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return err
	}
	a.Logger().Info("orders written", "path", path, "count", len(found))
	_, err = fmt.Fprintln(stdout, path)
	return err
}

// ordersOutput resolves where orders are written. The empty string means
// stdout, which is only the default for today's orders.
func ordersOutput(out, mode string, now time.Time, loc *time.Location) string {
	if out != "" || mode == "today" {
		return out
	}
	return "orders_" + now.In(loc).Format("20060102_150405") + ".json"
}

func orderWindow(mode string, ge, lt int64, now time.Time, loc *time.Location) (orders.Window, error) {
	switch mode {
	case "today":
		return orders.Today(now, loc), nil
	case "7days":
		return orders.LastDays(now, loc, 7), nil
	case "range":
		w, err := orders.Range(ge, lt)
		if err != nil {
			return orders.Window{}, usageError{msg: err.Error()}
		}
		return w, nil
	default:
		return orders.Window{}, usagef("unknown mode %q", mode)
	}
}

func runCallback(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("callback")
	addr := fs.String("addr", ":9000", "listen address")
	state := fs.String("state", "", "expected state value (generated when empty)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *state == "" {
		generated, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return err
		}
		*state = generated
	}

	logger := app.NewLogger(cfg)
	logger.Info("waiting for authorization redirect", "addr", *addr, "state", *state)

	grant, err := callback.NewServer(*state, logger).ListenAndWait(ctx, *addr)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{
		"auth_code":   grant.Code,
		"state":       grant.State,
		"received_at": grant.ReceivedAt.Unix(),
	})
}

// queryFlag collects repeated k=v flags.
type queryFlag signx.Params

func (q queryFlag) String() string {
	pairs := make([]string, 0, len(q))
	for k, v := range q {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (q queryFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	q[k] = v
	return nil
}

func runSign(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("sign")
	path := fs.String("path", "", "API path, e.g. /order/202309/orders/search")
	body := fs.String("body", "", "JSON request body")
	fs.StringVar(&cfg.SignScheme, "scheme", cfg.SignScheme, "signing scheme")
	query := queryFlag{}
	fs.Var(query, "query", "extra query parameter k=v (repeatable)")
	omitShop := fs.Bool("omit-shop", false, "leave out the shop parameter")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *path == "" {
		return usagef("--path is required")
	}

	req := shopsdk.Request{Path: *path, Query: signx.Params(query), OmitShop: *omitShop}
	if *body != "" {
		if !json.Valid([]byte(*body)) {
			return usagef("--body is not valid JSON")
		}
		req.Body = json.RawMessage(*body)
	}

	a, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	params, res, err := a.Client().Sign(req)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{
		"scheme":    cfg.SignScheme,
		"params":    params,
		"canonical": res.Canonical,
		"sign":      res.Signature,
	})
}

func runKeepalive(ctx context.Context, cfg app.Config, args []string, _ io.Writer) error {
	fs := newFlagSet("keepalive")
	fs.DurationVar(&cfg.KeepaliveInterval, "interval", cfg.KeepaliveInterval, "check interval")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.RunKeeper(ctx)
}

// diagResult is one attempt at the shops endpoint.
type diagResult struct {
	Scheme       string `json:"scheme"`
	Version      bool   `json:"version"`
	TokenInQuery bool   `json:"access_token_in_query"`
	OK           bool   `json:"ok"`
	Code         int    `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
	Status       int    `json:"status,omitempty"`
}

func runDiag(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("diag")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := diagnose(ctx, a.Config(), a.Tokens())
	if err != nil {
		return err
	}
	return writeJSON(stdout, results)
}

// diagnose calls DiagPath once per scheme and query shape: with or without
// the version parameter, and with or without the access token signed into
// the query. Rejections are reported, never retried, so a run costs at most
// the one refresh needed to obtain a valid token.
func diagnose(ctx context.Context, cfg app.Config, tokens *shopsdk.TokenManager) ([]diagResult, error) {
	token, err := tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}
	httpClient := app.NewHTTPClient(cfg)

	var results []diagResult
	for _, scheme := range signx.Schemes() {
		client, err := shopsdk.NewClient(shopsdk.ClientConfig{
			BaseURL:     cfg.BaseURL,
			AppKey:      cfg.AppKey,
			AppSecret:   cfg.AppSecret,
			Version:     cfg.APIVersion,
			TokenHeader: cfg.TokenHeader,
			Scheme:      scheme,
		}, tokens, shopsdk.WithHTTPClient(httpClient))
		if err != nil {
			return nil, err
		}

		for _, withVersion := range []bool{true, false} {
			for _, tokenInQuery := range []bool{false, true} {
				req := shopsdk.Request{
					Path:        DiagPath,
					OmitShop:    true,
					OmitVersion: !withVersion,
					NoRetry:     true,
				}
				if tokenInQuery {
					req.Query = signx.Params{"access_token": token}
				}

				res, err := attempt(ctx, client, req)
				if err != nil {
					return nil, err
				}
				res.Scheme, res.Version, res.TokenInQuery = scheme.Name, withVersion, tokenInQuery
				results = append(results, res)
			}
		}
	}
	return results, nil
}

func attempt(ctx context.Context, client *shopsdk.Client, req shopsdk.Request) (diagResult, error) {
	var res diagResult

	resp, err := client.Call(ctx, req)
	var failed *shopsdk.RequestFailedError
	switch {
	case err == nil:
		res.OK = resp.Code == 0
		res.Code, res.Message = resp.Code, resp.Message
	case errors.As(err, &failed):
		res.Code, res.Message, res.Status = failed.Code, failed.Message, failed.StatusCode
	default:
		return diagResult{}, err
	}
	return res, nil
}
