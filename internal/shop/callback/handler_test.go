package callback_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/shop/callback"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		expected   string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"auth_code param", "", "/?auth_code=AC1&state=s1", http.StatusOK, "AC1"},
		{"code param fallback", "", "/?code=C1", http.StatusOK, "C1"},
		{"auth_code wins over code", "", "/?auth_code=AC1&code=C1", http.StatusOK, "AC1"},
		{"missing code", "", "/?state=s1", http.StatusBadRequest, ""},
		{"state matches", "s1", "/?auth_code=AC1&state=s1", http.StatusOK, "AC1"},
		{"state mismatch", "s1", "/?auth_code=AC1&state=evil", http.StatusBadRequest, ""},
		{"state missing", "s1", "/?auth_code=AC1", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := callback.NewHandler(tt.expected)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			grant, err := h.Wait(ctx)

			if tt.wantCode == "" {
				require.ErrorIs(t, err, context.DeadlineExceeded)
				return
			}
			require.NoError(t, err)
			require.Equal(t, callback.SuccessMessage, rec.Body.String())
			require.Equal(t, tt.wantCode, grant.Code)
			require.False(t, grant.ReceivedAt.IsZero())
		})
	}
}

func TestHandler_RejectsNonGet(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	callback.NewHandler("").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/?auth_code=x", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_RoutesAreRateLimited(t *testing.T) {
	t.Parallel()

	h := callback.NewHandler("")
	routes := h.Routes(slogx.Discard(), httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})

	for i, want := range []int{http.StatusBadRequest, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "request %d", i+1)
	}
}

func TestServer_ReturnsFirstGrant(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := callback.NewServer("st", slogx.Discard())

	type result struct {
		grant callback.Grant
		err   error
	}
	done := make(chan result, 1)
	go func() {
		g, err := srv.Serve(context.Background(), ln)
		done <- result{g, err}
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/callback?auth_code=AC9&state=st", ln.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, callback.SuccessMessage, string(body))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, "AC9", r.grant.Code)
		require.Equal(t, "st", r.grant.State)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not return the grant")
	}
}

func TestServer_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := callback.NewServer("", slogx.Discard()).Serve(ctx, ln)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
