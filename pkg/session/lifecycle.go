package session

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"
)

// InitializeSession configures the Manager and, when a still valid identity
// is cached, acquires a token and reports a successful login.
func (m *Manager) InitializeSession(ctx context.Context) error {
	if err := m.Configure(ctx); err != nil {
		return fmt.Errorf("configuring session: %w", err)
	}

	identity, err := m.CurrentUser(ctx)
	if err != nil {
		return err
	}

	if identity == nil {
		slogctx.Debug(ctx, "No cached identity, waiting for sign in")
		return nil
	}

	valid, err := m.CheckIdentityTokenValidity(ctx)
	if err != nil {
		return fmt.Errorf("checking identity token: %w", err)
	}

	if !valid {
		slogctx.Info(ctx, "Cached identity is no longer valid", "username", identity.Username)
		return nil
	}

	if _, err := m.AcquireToken(ctx); err != nil {
		return fmt.Errorf("acquiring token: %w", err)
	}

	m.notify(ctx, EventLoginSuccess)

	return nil
}

// SignIn runs the interactive login and reports its outcome. It does nothing
// until the Manager is configured.
func (m *Manager) SignIn(ctx context.Context) error {
	provider, ok := m.handle()
	if !ok {
		slogctx.Warn(ctx, "Sign in requested before the session was configured")
		return nil
	}

	if err := provider.SignInInteractive(ctx, m.cfg.LoginScopes); err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	identity, err := m.CurrentUser(ctx)
	if err != nil {
		return err
	}

	if identity == nil {
		m.notify(ctx, EventLoginFailure)
		return nil
	}

	if _, err := m.AcquireToken(ctx); err != nil {
		return fmt.Errorf("acquiring token: %w", err)
	}

	m.notify(ctx, EventLoginSuccess)

	return nil
}

// SignOutLocal runs the provider sign-out. The local cache is left alone.
func (m *Manager) SignOutLocal(ctx context.Context) error {
	provider, ok := m.handle()
	if !ok {
		return nil
	}

	if err := provider.SignOutInteractive(ctx); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	return nil
}

func (m *Manager) notify(ctx context.Context, event Event) {
	slogctx.Info(ctx, "Session event", "event", event)

	if m.notifier != nil {
		m.notifier.Notify(ctx, event)
	}
}
