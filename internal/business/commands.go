package business

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-yaml"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

// LoginMain restores the cached session or, when there is none, runs the
// interactive sign in.
func LoginMain(out io.Writer) func(context.Context, *config.Config) error {
	return withSession(func(ctx context.Context, s *clientSession) error {
		return login(ctx, s, out)
	})
}

// TokenMain prints an access token for the signed-in user.
func TokenMain(out io.Writer) func(context.Context, *config.Config) error {
	return withSession(func(ctx context.Context, s *clientSession) error {
		return printToken(ctx, s, out)
	})
}

// StatusMain prints the session state as YAML.
func StatusMain(out io.Writer) func(context.Context, *config.Config) error {
	return withSession(func(ctx context.Context, s *clientSession) error {
		return printStatus(ctx, s, out)
	})
}

// LogoutMain signs the user out and forgets the cached session.
func LogoutMain(out io.Writer) func(context.Context, *config.Config) error {
	return withSession(func(ctx context.Context, s *clientSession) error {
		return logout(ctx, s, out)
	})
}

// ClearMain purges the identity provider entries from the cache.
func ClearMain(out io.Writer) func(context.Context, *config.Config) error {
	return withSession(func(ctx context.Context, s *clientSession) error {
		return clearCache(ctx, s, out)
	})
}

func withSession(fn func(context.Context, *clientSession) error) func(context.Context, *config.Config) error {
	return func(ctx context.Context, cfg *config.Config) error {
		s, err := initSession(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialising the session: %w", err)
		}
		defer s.Close()

		return fn(ctx, s)
	}
}

func login(ctx context.Context, s *clientSession, out io.Writer) error {
	m := s.manager

	err := m.InitializeSession(ctx)
	if err != nil {
		if !m.IsConfigured() {
			return err
		}

		slogctx.Warn(ctx, "Failed to restore the cached session", "error", err)
	}

	if _, ok := m.Token(); !ok {
		m.OnTokenReady(func(token session.AccessToken) {
			slogctx.Info(ctx, "Access token ready", "expires_on", token.ExpiresOn)
		})

		if err := m.SignIn(ctx); err != nil {
			return fmt.Errorf("signing in: %w", err)
		}
	}

	if !s.state.State().LoggedIn {
		return serviceerr.ErrNotSignedIn
	}

	identity, err := m.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if identity == nil {
		return serviceerr.ErrNotSignedIn
	}

	_, err = fmt.Fprintf(out, "Signed in as %s\n", identity.Username)

	return err
}

func printToken(ctx context.Context, s *clientSession, out io.Writer) error {
	m := s.manager

	if err := m.Configure(ctx); err != nil {
		return fmt.Errorf("configuring session: %w", err)
	}

	valid, err := m.CheckIdentityTokenValidity(ctx)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("%w: run login first", serviceerr.ErrNotSignedIn)
	}

	res := <-m.AcquireTokenAsync(ctx)
	if res.Err != nil {
		return fmt.Errorf("acquiring token: %w", res.Err)
	}

	_, err = fmt.Fprintln(out, res.Token.Value)

	return err
}

type statusReport struct {
	ClientID     string          `yaml:"clientID"`
	SignedIn     bool            `yaml:"signedIn"`
	IDTokenValid bool            `yaml:"idTokenValid"`
	Identity     *identityReport `yaml:"identity,omitempty"`
	LastEvent    string          `yaml:"lastEvent,omitempty"`
	UpdatedAt    string          `yaml:"updatedAt,omitempty"`
}

type identityReport struct {
	Username         string `yaml:"username"`
	Name             string `yaml:"name,omitempty"`
	TenantID         string `yaml:"tenantID,omitempty"`
	HomeAccountID    string `yaml:"homeAccountID"`
	IDTokenExpiresOn string `yaml:"idTokenExpiresOn,omitempty"`
}

func printStatus(ctx context.Context, s *clientSession, out io.Writer) error {
	m := s.manager

	if err := m.Configure(ctx); err != nil {
		return fmt.Errorf("configuring session: %w", err)
	}

	report := statusReport{ClientID: m.ClientID()}

	identity, err := m.CurrentUser(ctx)
	if err != nil {
		return err
	}

	if identity != nil {
		report.SignedIn = true
		report.Identity = &identityReport{
			Username:         identity.Username,
			Name:             identity.Name,
			TenantID:         identity.TenantID,
			HomeAccountID:    identity.HomeAccountID,
			IDTokenExpiresOn: formatTime(identity.IDTokenExpiresOn),
		}

		report.IDTokenValid, err = m.CheckIdentityTokenValidity(ctx)
		if err != nil {
			return err
		}
	}

	state, err := s.state.Load(ctx)
	if err != nil {
		slogctx.Warn(ctx, "Failed to load the application state", "error", err)
	}

	report.LastEvent = string(state.LastEvent)
	report.UpdatedAt = formatTime(state.UpdatedAt)

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	_, err = out.Write(data)

	return err
}

func logout(ctx context.Context, s *clientSession, out io.Writer) error {
	m := s.manager

	if err := m.Configure(ctx); err != nil {
		return fmt.Errorf("configuring session: %w", err)
	}

	if err := m.SignOutLocal(ctx); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	if err := m.ClearLocalCache(ctx); err != nil {
		return err
	}

	if err := s.state.Reset(ctx); err != nil {
		return err
	}

	_, err := fmt.Fprintln(out, "Signed out")

	return err
}

func clearCache(ctx context.Context, s *clientSession, out io.Writer) error {
	m := s.manager

	if err := m.Configure(ctx); err != nil {
		return fmt.Errorf("configuring session: %w", err)
	}

	if err := m.ClearLocalCache(ctx); err != nil {
		return err
	}

	_, err := fmt.Fprintln(out, "Cleared the local session cache")

	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}
