package shopsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(sec int64) *fakeClock {
	return &fakeClock{now: time.Unix(sec, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(sec, 0)
}

// tokenEndpoint is a fake refresh endpoint that counts calls.
type tokenEndpoint struct {
	*httptest.Server

	calls atomic.Int32

	mu      sync.Mutex
	status  int
	body    string
	delay   time.Duration
	lastReq *http.Request
}

func newTokenEndpoint(t *testing.T, body string) *tokenEndpoint {
	t.Helper()

	te := &tokenEndpoint{status: http.StatusOK, body: body}
	te.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.calls.Add(1)

		te.mu.Lock()
		status, body, delay := te.status, te.body, te.delay
		te.lastReq = r
		te.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(te.Close)
	return te
}

func (te *tokenEndpoint) respond(status int, body string) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.status, te.body = status, body
}

func (te *tokenEndpoint) setDelay(d time.Duration) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.delay = d
}

func (te *tokenEndpoint) last() *http.Request {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.lastReq
}

func (te *tokenEndpoint) count() int {
	return int(te.calls.Load())
}

var testCreds = Credentials{AppKey: "ak123", AppSecret: "secret"}

func newTestManager(t *testing.T, te *tokenEndpoint, clock *fakeClock, store TokenStore, opts ...Option) *TokenManager {
	t.Helper()

	base := []Option{
		WithClock(clock.Now),
		WithRefreshURL(te.URL),
		WithHTTPClient(te.Client()),
		WithLogger(slogx.Discard()),
	}
	m, err := NewTokenManager(context.Background(), testCreds, store, append(base, opts...)...)
	require.NoError(t, err)
	return m
}

// failingStore loads like a MemoryStore but refuses to save.
type failingStore struct {
	*MemoryStore
}

var errDiskFull = errors.New("disk full")

func (failingStore) Save(context.Context, TokenState) error {
	return errDiskFull
}
