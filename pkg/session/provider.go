package session

import "context"

// IdentityProvider is the handle to the interactive authentication library.
type IdentityProvider interface {
	// SignInInteractive runs the interactive login and populates the cache.
	SignInInteractive(ctx context.Context, scopes []string) error
	// SignOutInteractive runs the provider's sign-out flow.
	SignOutInteractive(ctx context.Context) error
	// ListCachedIdentities returns the cached identities in provider order.
	ListCachedIdentities(ctx context.Context) ([]Identity, error)
	AcquireTokenSilent(ctx context.Context, req TokenRequest) (AccessToken, error)
	AcquireTokenInteractive(ctx context.Context, req TokenRequest) (AccessToken, error)
	ClientID() string
}

// ProviderFactory builds an IdentityProvider. The cache is the persistent
// store the provider keeps its tokens in.
type ProviderFactory func(ctx context.Context, cfg ProviderConfig, cache Cache) (IdentityProvider, error)

// Notifier receives login outcome events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Cache is the key-value storage shared by the identity provider and the
// Manager. Get returns serviceerr.ErrNotFound for a missing key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}
