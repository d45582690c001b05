package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/httpx"
)

// Server runs a Handler on a listener until one grant has been captured.
type Server struct {
	handler *Handler
	logger  *slog.Logger
	limit   httpx.RateLimitConfig

	// ShutdownGracePeriod bounds how long in-flight requests get once a
	// grant has arrived.
	ShutdownGracePeriod time.Duration
}

// NewServer returns a Server for expectedState (may be empty).
func NewServer(expectedState string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler:             NewHandler(expectedState),
		logger:              logger.With("component", "callback"),
		limit:               httpx.CallbackLimit,
		ShutdownGracePeriod: 5 * time.Second,
	}
}

// ListenAndWait listens on addr and returns the first grant received.
func (s *Server) ListenAndWait(ctx context.Context, addr string) (Grant, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Grant{}, fmt.Errorf("callback: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and returns the first grant received, or an error when
// ctx ends or the server fails. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) (Grant, error) {
	srv := &http.Server{
		Handler:           s.handler.Routes(s.logger, s.limit),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	s.logger.Info("waiting for authorization redirect", "addr", ln.Addr().String())

	grant, err := s.wait(ctx, serverErrors)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownGracePeriod)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		s.logger.Error("graceful callback shutdown failed", "error", serr)
		_ = srv.Close()
	}

	return grant, err
}

func (s *Server) wait(ctx context.Context, serverErrors <-chan error) (Grant, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	grants := make(chan Grant, 1)
	go func() {
		if g, err := s.handler.Wait(waitCtx); err == nil {
			grants <- g
		}
	}()

	select {
	case g := <-grants:
		return g, nil
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return Grant{}, fmt.Errorf("callback: server failed: %w", err)
		}
		return Grant{}, errors.New("callback: server stopped")
	case <-ctx.Done():
		return Grant{}, ctx.Err()
	}
}
