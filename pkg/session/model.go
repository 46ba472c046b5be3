package session

import "time"

// Identity is a signed-in user as seen through the identity provider cache.
// It is re-read from the provider on every query and never owned by the Manager.
type Identity struct {
	HomeAccountID    string    // Provider-wide unique identifier of the account
	Username         string    // Preferred username, usually the UPN or email
	Name             string    // Display name
	TenantID         string    // Directory the account signed in to
	IDTokenExpiresOn time.Time // Expiry of the cached ID token, zero if unknown
}

// AccessToken is the bearer credential the Manager hands out to its callers.
type AccessToken struct {
	Value     string
	Scopes    []string
	ExpiresOn time.Time
}

// IsZero reports whether the token carries no credential.
func (t AccessToken) IsZero() bool {
	return t.Value == ""
}

// TokenRequest is passed to both the silent and the interactive acquisition.
type TokenRequest struct {
	Scopes   []string
	Identity *Identity // nil when nobody is signed in
}

// TokenResult is delivered by AcquireTokenAsync once the acquisition settles.
type TokenResult struct {
	Token AccessToken
	Err   error
}

// Event is a notification sent to the application state store.
type Event string

const (
	EventLoginSuccess Event = "login-success"
	EventLoginFailure Event = "login-failure"
)

// ProviderConfig holds everything a ProviderFactory needs to build the
// identity provider handle.
//
// CacheNamespace prefixes every cache key the provider writes, so that
// ClearLocalCache finds them. It defaults to the Manager's key pattern.
type ProviderConfig struct {
	TenantID       string
	ClientID       string
	RedirectURI    string
	Authority      string
	LoginScopes    []string
	CacheLocation  string
	CacheNamespace string
}
