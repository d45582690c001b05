package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/shop/orders"
	"github.com/aussiebroadwan/shopauth/internal/shop/store/drivers/file"
	"github.com/aussiebroadwan/shopauth/internal/shop/store/drivers/sqlite"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, apiURL, authURL string) Config {
	t.Helper()
	return Config{
		AppKey:            "ak",
		AppSecret:         "secret",
		ShopCipher:        "ROW_x",
		RefreshToken:      "R1",
		BaseURL:           apiURL,
		AuthURL:           authURL,
		APIVersion:        "202309",
		TokenHeader:       "x-tts-access-token",
		SignScheme:        "concat",
		TokenStore:        "file",
		TokenState:        filepath.Join(t.TempDir(), "token_state.json"),
		HTTPTimeout:       5 * time.Second,
		TimezoneOffset:    7 * time.Hour,
		KeepaliveInterval: time.Minute,
	}
}

func TestApplication_EndToEnd(t *testing.T) {
	t.Parallel()

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "R1", r.URL.Query().Get("refresh_token"))
		_, _ = w.Write([]byte(`{"data":{"access_token":"A1","access_token_expire_in":3600}}`))
	}))
	t.Cleanup(auth.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-tts-access-token") != "A1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"orders":[{"id":"o1","create_time":1500}]}}`))
	}))
	t.Cleanup(api.Close)

	cfg := testConfig(t, api.URL, auth.URL)
	app, err := New(context.Background(), cfg, slogx.Discard(),
		shopsdk.WithClock(func() time.Time { return time.Unix(1000, 0) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	got, err := app.Orders().SearchByCreated(context.Background(), orderWindow(1000, 2000), 50)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// The refreshed state was persisted to the configured file.
	persisted, err := file.New(cfg.TokenState, nil).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, shopsdk.TokenState{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: 4600}, persisted)
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{}, slogx.Discard())
	var missing *shopsdk.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig(t, "", "")
		cfg.TokenStore = "sqlite"
		cfg.TokenState = filepath.Join(t.TempDir(), "shopauth.db")

		app, err := New(context.Background(), cfg, slogx.Discard())
		require.NoError(t, err)
		t.Cleanup(func() { _ = app.Close() })

		require.IsType(t, &sqlite.Store{}, app.Store())
		require.NoError(t, app.Store().Ping(context.Background()))
	})

	t.Run("sealed file", func(t *testing.T) {
		cfg := testConfig(t, "", "")
		cfg.StateKey = "k"

		db, err := OpenStore(cfg)
		require.NoError(t, err)
		require.NoError(t, db.Save(context.Background(), shopsdk.TokenState{AccessToken: "A"}))

		_, err = file.New(cfg.TokenState, nil).Load(context.Background())
		require.Error(t, err, "sealed state must not load without the key")
	})
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	plain := NewHTTPClient(Config{HTTPTimeout: time.Second})
	require.Equal(t, time.Second, plain.Timeout)
	require.Equal(t, http.DefaultTransport, plain.Transport)

	limited := NewHTTPClient(Config{HTTPTimeout: time.Second, RateLimitQPS: 5, RateLimitBurst: 2})
	require.IsType(t, &httpx.RateLimitedTransport{}, limited.Transport)
}

func TestApplication_RunKeeperStopsWithContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "", "")
	cfg.AccessToken = "A0"
	app, err := New(context.Background(), cfg, slogx.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, app.RunKeeper(ctx))
}

func orderWindow(ge, lt int64) orders.Window {
	return orders.Window{Ge: ge, Lt: lt}
}
