package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
)

// RefresherMain keeps the access token of the signed-in user fresh.
func RefresherMain(ctx context.Context, cfg *config.Config) error {
	s, err := initSession(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session: %w", err)
	}
	defer s.Close()

	if err := s.manager.InitializeSession(ctx); err != nil {
		if !s.manager.IsConfigured() {
			return err
		}

		slogctx.Warn(ctx, "Failed to restore the cached session", "error", err)
	}

	slogctx.Info(ctx, "Starting token refresh job", "interval", cfg.Session.RefreshInterval)

	return startTokenRefresher(ctx, s, cfg.Session.RefreshInterval)
}

func startTokenRefresher(ctx context.Context, s *clientSession, interval time.Duration) error {
	c := time.Tick(interval)
	for {
		select {
		case <-c:
			refreshToken(ctx, s)
		case <-ctx.Done():
			return nil
		}
	}
}

func refreshToken(ctx context.Context, s *clientSession) {
	valid, err := s.manager.CheckIdentityTokenValidity(ctx)
	if err != nil {
		slogctx.Error(ctx, "Failed to check the identity token", "error", err)
		return
	}

	if !valid {
		slogctx.Info(ctx, "No valid session, waiting for login")
		return
	}

	slogctx.Debug(ctx, "Triggering token refresh")

	token, err := s.manager.AcquireToken(ctx)
	if err != nil {
		slogctx.Error(ctx, "Failed to refresh the access token", "error", err)
		return
	}

	slogctx.Info(ctx, "Refreshed the access token", "expires_on", token.ExpiresOn)
}
