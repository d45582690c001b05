package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/shop/app"
	"github.com/aussiebroadwan/shopauth/internal/shop/orders"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	"github.com/aussiebroadwan/shopauth/pkg/signx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestOrderWindow(t *testing.T) {
	t.Parallel()

	loc := orders.DefaultZone
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, loc)

	today, err := orderWindow("today", 0, 0, now, loc)
	require.NoError(t, err)
	require.Equal(t, orders.Today(now, loc), today)

	week, err := orderWindow("7days", 0, 0, now, loc)
	require.NoError(t, err)
	require.Equal(t, orders.LastDays(now, loc, 7), week)

	r, err := orderWindow("range", 100, 200, now, loc)
	require.NoError(t, err)
	require.Equal(t, orders.Window{Ge: 100, Lt: 200}, r)

	var uerr usageError
	_, err = orderWindow("range", 200, 100, now, loc)
	require.ErrorAs(t, err, &uerr)

	_, err = orderWindow("yesterday", 0, 0, now, loc)
	require.ErrorAs(t, err, &uerr)
}

func TestQueryFlag(t *testing.T) {
	t.Parallel()

	q := queryFlag{}
	require.NoError(t, q.Set("page_size=50"))
	require.NoError(t, q.Set("filter=a=b"))
	require.Equal(t, queryFlag{"page_size": "50", "filter": "a=b"}, q)

	require.Error(t, q.Set("novalue"))
	require.Error(t, q.Set("=x"))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	state := shopsdk.TokenState{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: 4600}

	s := summarize(state, shopsdk.StatusValid, now)
	require.Equal(t, "1h0m0s", s.ExpiresIn)
	require.Equal(t, "valid", s.Status)
	require.Equal(t, cryptox.FingerprintToken("A1"), s.AccessToken)
	require.Equal(t, cryptox.FingerprintToken("R1"), s.RefreshToken)

	unknown := summarize(shopsdk.TokenState{AccessToken: "A1"}, shopsdk.StatusValid, now)
	require.Empty(t, unknown.ExpiresIn)
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	fs := newFlagSet("x")
	fs.String("path", "", "")

	var uerr usageError
	require.ErrorAs(t, parseFlags(fs, []string{"--nope"}), &uerr)

	fs = newFlagSet("x")
	require.ErrorAs(t, parseFlags(fs, []string{"stray"}), &uerr)
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	const secret = "secret"
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, DiagPath, r.URL.Path)

		q := r.URL.Query()
		require.Empty(t, q.Get("shop_cipher"))

		// Only the ampersand convention with a version and the access token
		// signed into the query is accepted.
		params := signx.Params{}
		for k := range q {
			params[k] = q.Get(k)
		}
		signer, err := signx.New(secret, signx.SchemeAmpersand)
		require.NoError(t, err)
		if q.Get("version") == "" || q.Get("access_token") != "A1" ||
			signer.Sign(r.URL.Path, params, nil).Signature != q.Get("sign") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":106001,"message":"invalid sign"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"shops":[]}}`))
	}))
	t.Cleanup(api.Close)

	var refreshes atomic.Int32
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		_, _ = w.Write([]byte(`{"data":{"access_token":"A2"}}`))
	}))
	t.Cleanup(auth.Close)

	cfg := app.Config{
		BaseURL:     api.URL,
		AppKey:      "ak",
		AppSecret:   secret,
		APIVersion:  "202309",
		TokenHeader: "x-tts-access-token",
		HTTPTimeout: 5 * time.Second,
	}
	tokens, err := shopsdk.NewTokenManager(context.Background(),
		shopsdk.Credentials{AppKey: cfg.AppKey, AppSecret: cfg.AppSecret},
		shopsdk.NewMemoryStore(shopsdk.TokenState{AccessToken: "A1", RefreshToken: "R1"}),
		shopsdk.WithLogger(slogx.Discard()),
		shopsdk.WithRefreshURL(auth.URL),
	)
	require.NoError(t, err)

	results, err := diagnose(context.Background(), cfg, tokens)
	require.NoError(t, err)
	require.Len(t, results, 4*len(signx.Schemes()))

	var accepted []diagResult
	for _, r := range results {
		if r.OK {
			accepted = append(accepted, r)
		} else {
			require.Equal(t, 106001, r.Code)
			require.Equal(t, http.StatusUnauthorized, r.Status)
		}
	}
	require.Equal(t, []diagResult{{Scheme: "ampersand", Version: true, TokenInQuery: true, OK: true}}, accepted)

	// Rejections are reported without refreshing the token.
	require.Zero(t, refreshes.Load())
	require.Equal(t, "A1", tokens.State().AccessToken)
}

func TestBindShopFlags(t *testing.T) {
	t.Parallel()

	base := app.Config{AppKey: "env-key", ShopCipher: "ROW_env", TokenState: "token_state.json"}

	t.Run("overrides configuration", func(t *testing.T) {
		cfg := base
		fs := newFlagSet("orders")
		apply := bindShopFlags(fs, &cfg)
		require.NoError(t, parseFlags(fs, []string{
			"--app-key", "AK", "--app-secret", "SECRET", "--shop-id", "123",
			"--refresh-token", "R9", "--base", "http://api.test", "--token-state", "/tmp/s.json",
		}))
		require.NoError(t, apply())

		require.Equal(t, "AK", cfg.AppKey)
		require.Equal(t, "SECRET", cfg.AppSecret)
		require.Equal(t, "123", cfg.ShopID)
		require.Empty(t, cfg.ShopCipher, "a shop id replaces the configured cipher")
		require.Equal(t, "R9", cfg.RefreshToken)
		require.Equal(t, "http://api.test", cfg.BaseURL)
		require.Equal(t, "/tmp/s.json", cfg.TokenState)
	})

	t.Run("keeps configuration when unset", func(t *testing.T) {
		cfg := base
		fs := newFlagSet("orders")
		apply := bindShopFlags(fs, &cfg)
		require.NoError(t, parseFlags(fs, nil))
		require.NoError(t, apply())
		require.Equal(t, base, cfg)
	})

	t.Run("shop id and cipher are exclusive", func(t *testing.T) {
		cfg := base
		fs := newFlagSet("orders")
		apply := bindShopFlags(fs, &cfg)
		require.NoError(t, parseFlags(fs, []string{"--shop-id", "123", "--shop-cipher", "ROW_x"}))

		var uerr usageError
		require.ErrorAs(t, apply(), &uerr)
	})
}

func TestOrdersOutput(t *testing.T) {
	t.Parallel()

	loc := orders.DefaultZone
	now := time.Date(2024, 5, 10, 23, 30, 5, 0, time.UTC)

	require.Empty(t, ordersOutput("", "today", now, loc))
	require.Equal(t, "mine.json", ordersOutput("mine.json", "today", now, loc))
	require.Equal(t, "mine.json", ordersOutput("mine.json", "7days", now, loc))
	require.Equal(t, "orders_20240511_063005.json", ordersOutput("", "7days", now, loc))
	require.Equal(t, "orders_20240511_063005.json", ordersOutput("", "range", now, loc))
}
