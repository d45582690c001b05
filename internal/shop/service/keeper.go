package service

import (
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// KeeperService periodically asks for a valid token so the access token is
// refreshed ahead of expiry even when no business calls are being made. The
// refresh token is exercised before it can go stale.
type KeeperService struct {
	Tokens   oauth2.TokenSource
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewKeeperService creates a new keeper with the given interval.
// If interval is 0 or negative, defaults to 5 minutes.
func NewKeeperService(tokens oauth2.TokenSource, logger *slog.Logger, interval time.Duration) *KeeperService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &KeeperService{
		Tokens:   tokens,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. It is non-blocking; call Stop() to
// shut the worker down.
func (s *KeeperService) Start() {
	go s.run()
	s.Logger.Info("keeper service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until an in-progress check has finished.
func (s *KeeperService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("keeper service stopped")
}

func (s *KeeperService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Check immediately on startup
	s.keep()

	for {
		select {
		case <-ticker.C:
			s.keep()
		case <-s.stopCh:
			return
		}
	}
}

// keep fetches a valid token. Failures are logged and retried on the next
// tick; a missing refresh token keeps failing until the shop is re-authorized.
func (s *KeeperService) keep() {
	tok, err := s.Tokens.Token()
	if err != nil {
		s.Logger.Error("keeping access token valid failed", "error", err)
		return
	}

	attrs := []any{}
	if !tok.Expiry.IsZero() {
		attrs = append(attrs, "expires_at", tok.Expiry.Unix(), "expires_in", time.Until(tok.Expiry).Round(time.Second).String())
	} else {
		attrs = append(attrs, "expires_at", "unknown")
	}
	s.Logger.Debug("access token valid", attrs...)
}
