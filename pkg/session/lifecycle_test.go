package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-client/pkg/session"
	sessionmock "github.com/openkcm/session-client/pkg/session/mock"
)

func TestManager_InitializeSession(t *testing.T) {
	expired := session.Identity{HomeAccountID: "alice.tenant", IDTokenExpiresOn: testNow.Add(-time.Hour)}

	tests := []struct {
		name       string
		provider   *sessionmock.Provider
		wantEvents []session.Event
		wantSilent int
		wantKeys   int
		errAssert  assert.ErrorAssertionFunc
	}{
		{
			name:       "No cached identity",
			provider:   sessionmock.NewProvider(sessionmock.WithSilentResult(silentToken, nil)),
			wantEvents: nil,
			wantSilent: 0,
			wantKeys:   2,
			errAssert:  assert.NoError,
		},
		{
			name: "Valid cached identity",
			provider: sessionmock.NewProvider(
				sessionmock.WithIdentities(alice),
				sessionmock.WithSilentResult(silentToken, nil),
			),
			wantEvents: []session.Event{session.EventLoginSuccess},
			wantSilent: 1,
			wantKeys:   2,
			errAssert:  assert.NoError,
		},
		{
			name: "Expired cached identity",
			provider: sessionmock.NewProvider(
				sessionmock.WithIdentities(expired),
				sessionmock.WithSilentResult(silentToken, nil),
			),
			wantEvents: nil,
			wantSilent: 0,
			wantKeys:   1,
			errAssert:  assert.NoError,
		},
		{
			name: "Acquisition fails",
			provider: sessionmock.NewProvider(
				sessionmock.WithIdentities(alice),
				sessionmock.WithSilentResult(session.AccessToken{}, errors.New("no refresh token")),
				sessionmock.WithInteractiveResult(session.AccessToken{}, errors.New("popup blocked")),
			),
			wantEvents: nil,
			wantSilent: 1,
			wantKeys:   2,
			errAssert:  assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := sessionmock.NewCache(sessionmock.WithEntries(map[string][]byte{
				"login.windows:cache:default": []byte("blob"),
				"app:theme":                   []byte("dark"),
			}))
			notifier := &sessionmock.Notifier{}
			m := newManager(t, tt.provider, cache, notifier)

			tt.errAssert(t, m.InitializeSession(t.Context()))

			assert.True(t, m.IsConfigured())
			assert.Equal(t, tt.wantEvents, notifier.Events())

			silent, _ := tt.provider.Calls()
			assert.Equal(t, tt.wantSilent, silent)
			assert.Len(t, cache.Entries, tt.wantKeys)
		})
	}
}

func TestManager_InitializeSessionConfigureError(t *testing.T) {
	factoryErr := errors.New("bad tenant")
	provider := sessionmock.NewProvider()
	notifier := &sessionmock.Notifier{}

	m, err := session.NewManager(provider.Factory(factoryErr), session.ProviderConfig{}, sessionmock.NewCache(), notifier)
	require.NoError(t, err)

	err = m.InitializeSession(t.Context())
	assert.ErrorIs(t, err, factoryErr)
	assert.False(t, m.IsConfigured())
	assert.Empty(t, notifier.Events())
}

func TestManager_SignIn(t *testing.T) {
	loginErr := errors.New("user cancelled")

	tests := []struct {
		name            string
		provider        *sessionmock.Provider
		configure       bool
		wantEvents      []session.Event
		wantSignIn      int
		wantAcquisition int
		errAssert       assert.ErrorAssertionFunc
	}{
		{
			name:       "Not configured",
			provider:   sessionmock.NewProvider(sessionmock.WithSignInIdentities(alice)),
			configure:  false,
			wantEvents: nil,
			wantSignIn: 0,
			errAssert:  assert.NoError,
		},
		{
			name: "Success",
			provider: sessionmock.NewProvider(
				sessionmock.WithSignInIdentities(alice),
				sessionmock.WithSilentResult(silentToken, nil),
			),
			configure:       true,
			wantEvents:      []session.Event{session.EventLoginSuccess},
			wantSignIn:      1,
			wantAcquisition: 1,
			errAssert:       assert.NoError,
		},
		{
			name:            "No identity after login",
			provider:        sessionmock.NewProvider(sessionmock.WithSilentResult(silentToken, nil)),
			configure:       true,
			wantEvents:      []session.Event{session.EventLoginFailure},
			wantSignIn:      1,
			wantAcquisition: 0,
			errAssert:       assert.NoError,
		},
		{
			name: "Login error propagates",
			provider: sessionmock.NewProvider(
				sessionmock.WithSignInIdentities(alice),
				sessionmock.WithSignInError(loginErr),
			),
			configure:  true,
			wantEvents: nil,
			wantSignIn: 1,
			errAssert: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, loginErr)
			},
		},
		{
			name: "Acquisition error propagates",
			provider: sessionmock.NewProvider(
				sessionmock.WithSignInIdentities(alice),
				sessionmock.WithSilentResult(session.AccessToken{}, nil),
			),
			configure:       true,
			wantEvents:      nil,
			wantSignIn:      1,
			wantAcquisition: 1,
			errAssert:       assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &sessionmock.Notifier{}
			m := newManager(t, tt.provider, sessionmock.NewCache(), notifier)
			if tt.configure {
				require.NoError(t, m.Configure(t.Context()))
			}

			tt.errAssert(t, m.SignIn(t.Context()))

			assert.Equal(t, tt.wantEvents, notifier.Events())
			assert.Equal(t, tt.wantSignIn, tt.provider.SignInCalls)

			silent, _ := tt.provider.Calls()
			assert.Equal(t, tt.wantAcquisition, silent)

			if tt.wantSignIn > 0 {
				assert.Equal(t, session.DefaultLoginScopes, tt.provider.LastLoginScopes)
			}
		})
	}
}

func TestManager_SignOutLocal(t *testing.T) {
	signOutErr := errors.New("sign out window failed")

	tests := []struct {
		name        string
		provider    *sessionmock.Provider
		configure   bool
		wantSignOut int
		errAssert   assert.ErrorAssertionFunc
	}{
		{
			name:        "Not configured",
			provider:    sessionmock.NewProvider(),
			configure:   false,
			wantSignOut: 0,
			errAssert:   assert.NoError,
		},
		{
			name:        "Delegates to provider",
			provider:    sessionmock.NewProvider(),
			configure:   true,
			wantSignOut: 1,
			errAssert:   assert.NoError,
		},
		{
			name:        "Provider error",
			provider:    sessionmock.NewProvider(sessionmock.WithSignOutError(signOutErr)),
			configure:   true,
			wantSignOut: 1,
			errAssert: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, signOutErr)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := sessionmock.NewCache(sessionmock.WithEntries(map[string][]byte{
				"login.windows:cache:default": []byte("blob"),
			}))
			m := newManager(t, tt.provider, cache, nil)
			if tt.configure {
				require.NoError(t, m.Configure(t.Context()))
			}

			tt.errAssert(t, m.SignOutLocal(t.Context()))

			assert.Equal(t, tt.wantSignOut, tt.provider.SignOutCalls)
			assert.Len(t, cache.Entries, 1, "local sign out must not clear the cache")
		})
	}
}
