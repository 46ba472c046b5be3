package business

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/appstate"
	"github.com/openkcm/session-client/pkg/session"
	sessionmock "github.com/openkcm/session-client/pkg/session/mock"
)

var accessToken = session.AccessToken{Value: "T0", Scopes: []string{"client-id/.default"}}

func alice(expiresIn time.Duration) session.Identity {
	return session.Identity{
		HomeAccountID:    "alice.tenant",
		Username:         "alice@example.com",
		Name:             "Alice",
		TenantID:         "tenant",
		IDTokenExpiresOn: time.Now().Add(expiresIn),
	}
}

func providerEntries() map[string][]byte {
	return map[string][]byte{
		"login.windows:cache:default":     []byte("blob"),
		"login.windows:idtoken:alice.sub": []byte("1"),
	}
}

func newTestSession(t *testing.T, provider *sessionmock.Provider, cache *sessionmock.Cache) *clientSession {
	t.Helper()

	s, err := newClientSession(testConfig(), provider.Factory(nil), cache)
	require.NoError(t, err)

	return s
}

func notSignedIn(t assert.TestingT, err error, _ ...any) bool {
	return assert.ErrorIs(t, err, serviceerr.ErrNotSignedIn)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		provider   *sessionmock.Provider
		wantOut    string
		wantSignIn int
		wantState  bool
		assertErr  assert.ErrorAssertionFunc
	}{
		{
			name: "Cached session is restored",
			provider: sessionmock.NewProvider(
				sessionmock.WithIdentities(alice(time.Hour)),
				sessionmock.WithSilentResult(accessToken, nil),
			),
			wantOut:    "Signed in as alice@example.com\n",
			wantSignIn: 0,
			wantState:  true,
			assertErr:  assert.NoError,
		},
		{
			name: "Interactive sign in",
			provider: sessionmock.NewProvider(
				sessionmock.WithSignInIdentities(alice(time.Hour)),
				sessionmock.WithSilentResult(accessToken, nil),
			),
			wantOut:    "Signed in as alice@example.com\n",
			wantSignIn: 1,
			wantState:  true,
			assertErr:  assert.NoError,
		},
		{
			name: "Expired session signs in again",
			provider: sessionmock.NewProvider(
				sessionmock.WithIdentities(alice(-time.Hour)),
				sessionmock.WithSilentResult(accessToken, nil),
			),
			wantSignIn: 1,
			wantState:  true,
			wantOut:    "Signed in as alice@example.com\n",
			assertErr:  assert.NoError,
		},
		{
			name:       "Sign in yields no identity",
			provider:   sessionmock.NewProvider(sessionmock.WithSilentResult(accessToken, nil)),
			wantSignIn: 1,
			wantState:  false,
			assertErr:  notSignedIn,
		},
		{
			name: "Sign in fails",
			provider: sessionmock.NewProvider(
				sessionmock.WithSignInError(errors.New("user cancelled")),
			),
			wantSignIn: 1,
			wantState:  false,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorContains(t, err, "signing in")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.provider, sessionmock.NewCache())

			var out bytes.Buffer
			tt.assertErr(t, login(t.Context(), s, &out))

			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantSignIn, tt.provider.SignInCalls)
			assert.Equal(t, tt.wantState, s.state.State().LoggedIn)
		})
	}
}

func TestPrintToken(t *testing.T) {
	tests := []struct {
		name      string
		provider  *sessionmock.Provider
		wantOut   string
		wantKeys  int
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name: "Signed in",
			provider: sessionmock.NewProvider(
				sessionmock.WithIdentities(alice(time.Hour)),
				sessionmock.WithSilentResult(accessToken, nil),
			),
			wantOut:   "T0\n",
			wantKeys:  2,
			assertErr: assert.NoError,
		},
		{
			name:      "Nobody signed in",
			provider:  sessionmock.NewProvider(),
			wantKeys:  2,
			assertErr: notSignedIn,
		},
		{
			name:      "Expired session is purged",
			provider:  sessionmock.NewProvider(sessionmock.WithIdentities(alice(-time.Minute))),
			wantKeys:  0,
			assertErr: notSignedIn,
		},
		{
			name: "Acquisition fails",
			provider: sessionmock.NewProvider(
				sessionmock.WithIdentities(alice(time.Hour)),
				sessionmock.WithSilentResult(session.AccessToken{}, serviceerr.ProviderUnavailable(errors.New("503"))),
			),
			wantKeys: 2,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, serviceerr.ErrProviderUnavailable)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := sessionmock.NewCache(sessionmock.WithEntries(providerEntries()))
			s := newTestSession(t, tt.provider, cache)

			var out bytes.Buffer
			tt.assertErr(t, printToken(t.Context(), s, &out))

			assert.Equal(t, tt.wantOut, out.String())
			assert.Len(t, cache.Entries, tt.wantKeys)
		})
	}
}

func TestPrintStatus(t *testing.T) {
	t.Run("Signed in", func(t *testing.T) {
		provider := sessionmock.NewProvider(sessionmock.WithIdentities(alice(time.Hour)))
		s := newTestSession(t, provider, sessionmock.NewCache())
		s.state.Notify(t.Context(), session.EventLoginSuccess)

		var out bytes.Buffer
		require.NoError(t, printStatus(t.Context(), s, &out))

		var got statusReport
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))

		assert.Equal(t, "client-id", got.ClientID)
		assert.True(t, got.SignedIn)
		assert.True(t, got.IDTokenValid)
		require.NotNil(t, got.Identity)
		assert.Equal(t, "alice@example.com", got.Identity.Username)
		assert.Equal(t, "tenant", got.Identity.TenantID)
		assert.NotEmpty(t, got.Identity.IDTokenExpiresOn)
		assert.Equal(t, string(session.EventLoginSuccess), got.LastEvent)
	})

	t.Run("Signed out", func(t *testing.T) {
		s := newTestSession(t, sessionmock.NewProvider(), sessionmock.NewCache())

		var out bytes.Buffer
		require.NoError(t, printStatus(t.Context(), s, &out))

		var got statusReport
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))

		assert.False(t, got.SignedIn)
		assert.Nil(t, got.Identity)
		assert.Empty(t, got.LastEvent)
	})
}

func TestLogout(t *testing.T) {
	provider := sessionmock.NewProvider(sessionmock.WithIdentities(alice(time.Hour)))
	cache := sessionmock.NewCache(sessionmock.WithEntries(providerEntries()))
	s := newTestSession(t, provider, cache)
	s.state.Notify(t.Context(), session.EventLoginSuccess)

	var out bytes.Buffer
	require.NoError(t, logout(t.Context(), s, &out))

	assert.Equal(t, "Signed out\n", out.String())
	assert.Equal(t, 1, provider.SignOutCalls)
	assert.Equal(t, []string{appstate.StateKey}, mapKeys(cache.Entries))

	state, err := appstate.New(appstate.WithCache(cache)).Load(t.Context())
	require.NoError(t, err)
	assert.False(t, state.LoggedIn)
}

func TestLogoutSignOutError(t *testing.T) {
	signOutErr := errors.New("browser unavailable")
	provider := sessionmock.NewProvider(sessionmock.WithSignOutError(signOutErr))
	cache := sessionmock.NewCache(sessionmock.WithEntries(providerEntries()))
	s := newTestSession(t, provider, cache)

	var out bytes.Buffer
	err := logout(t.Context(), s, &out)

	assert.ErrorIs(t, err, signOutErr)
	assert.Empty(t, out.String())
	assert.Len(t, cache.Entries, 2, "the cache is kept when the sign out fails")
}

func TestClearCache(t *testing.T) {
	entries := providerEntries()
	entries["app:theme"] = []byte("dark")

	cache := sessionmock.NewCache(sessionmock.WithEntries(entries))
	s := newTestSession(t, sessionmock.NewProvider(), cache)

	var out bytes.Buffer
	require.NoError(t, clearCache(t.Context(), s, &out))

	assert.Equal(t, "Cleared the local session cache\n", out.String())
	assert.Equal(t, []string{"app:theme"}, mapKeys(cache.Entries))
}

func TestStartTokenRefresher(t *testing.T) {
	provider := sessionmock.NewProvider(
		sessionmock.WithIdentities(alice(time.Hour)),
		sessionmock.WithSilentResult(accessToken, nil),
	)
	s := newTestSession(t, provider, sessionmock.NewCache())
	require.NoError(t, s.manager.Configure(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, startTokenRefresher(ctx, s, 10*time.Millisecond))

	silent, interactive := provider.Calls()
	assert.Positive(t, silent)
	assert.Zero(t, interactive)

	token, ok := s.manager.Token()
	assert.True(t, ok)
	assert.Equal(t, "T0", token.Value)
}

func TestStartTokenRefresherWithoutSession(t *testing.T) {
	provider := sessionmock.NewProvider(sessionmock.WithSilentResult(accessToken, nil))
	s := newTestSession(t, provider, sessionmock.NewCache())
	require.NoError(t, s.manager.Configure(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, startTokenRefresher(ctx, s, 10*time.Millisecond))

	silent, _ := provider.Calls()
	assert.Zero(t, silent, "nothing is refreshed while nobody is signed in")
}

func mapKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return keys
}
