package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"
)

const (
	// DefaultKeyPattern selects the cache entries written by the identity provider.
	DefaultKeyPattern = "login.windows"

	defaultAcquireTimeout = 2 * time.Minute
)

// DefaultLoginScopes are requested by SignIn when the config names none.
var DefaultLoginScopes = []string{"user.read", "openid", "profile"}

// Manager owns the session of one user against one identity provider.
// Construct it once and hand it to everything that needs a token.
type Manager struct {
	factory  ProviderFactory
	cfg      ProviderConfig
	cache    Cache
	notifier Notifier
	metrics  *metrics

	keyPattern     string
	acquireTimeout time.Duration
	now            func() time.Time

	configureMu sync.Mutex

	mu       sync.Mutex
	provider IdentityProvider
	token    AccessToken
	hasToken bool
	pending  []func(AccessToken)

	inProgress atomic.Bool
	flight     singleflight.Group
}

type Option func(*Manager)

// WithKeyPattern overrides the substring that marks provider cache entries.
func WithKeyPattern(pattern string) Option {
	return func(m *Manager) {
		if pattern != "" {
			m.keyPattern = pattern
		}
	}
}

// WithAcquireTimeout bounds a single token acquisition, interactive login included.
func WithAcquireTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.acquireTimeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(factory ProviderFactory, cfg ProviderConfig, cache Cache, notifier Notifier, opts ...Option) (*Manager, error) {
	if len(cfg.LoginScopes) == 0 {
		cfg.LoginScopes = DefaultLoginScopes
	}

	met, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating meters: %w", err)
	}

	m := &Manager{
		factory:        factory,
		cfg:            cfg,
		cache:          cache,
		notifier:       notifier,
		metrics:        met,
		keyPattern:     DefaultKeyPattern,
		acquireTimeout: defaultAcquireTimeout,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.cfg.CacheNamespace == "" {
		m.cfg.CacheNamespace = m.keyPattern
	}

	return m, nil
}

// Configure builds the identity provider handle. Only the first successful
// call constructs it; a failed call leaves the Manager unconfigured.
func (m *Manager) Configure(ctx context.Context) error {
	m.configureMu.Lock()
	defer m.configureMu.Unlock()

	if m.IsConfigured() {
		return nil
	}

	provider, err := m.factory(ctx, m.cfg, m.cache)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.provider = provider
	m.mu.Unlock()

	slogctx.Info(ctx, "Configured identity provider", "client_id", provider.ClientID())

	return nil
}

func (m *Manager) IsConfigured() bool {
	_, ok := m.handle()
	return ok
}

// ClientID returns the client identifier of the configured handle, or an
// empty string.
func (m *Manager) ClientID() string {
	provider, ok := m.handle()
	if !ok {
		return ""
	}

	return provider.ClientID()
}

// CurrentUser returns the first cached identity, or nil if there is none.
func (m *Manager) CurrentUser(ctx context.Context) (*Identity, error) {
	provider, ok := m.handle()
	if !ok {
		return nil, nil
	}

	identities, err := provider.ListCachedIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cached identities: %w", err)
	}

	if len(identities) == 0 {
		return nil, nil
	}

	identity := identities[0]

	return &identity, nil
}

func (m *Manager) IsSignedIn(ctx context.Context) (bool, error) {
	identity, err := m.CurrentUser(ctx)
	if err != nil {
		return false, err
	}

	return identity != nil, nil
}

// CheckIdentityTokenValidity reports whether the current identity holds an
// unexpired ID token. An expired token purges the provider cache entries.
func (m *Manager) CheckIdentityTokenValidity(ctx context.Context) (bool, error) {
	identity, err := m.CurrentUser(ctx)
	if err != nil {
		return false, err
	}

	if identity == nil || identity.IDTokenExpiresOn.IsZero() {
		return false, nil
	}

	if !m.now().Before(identity.IDTokenExpiresOn) {
		slogctx.Info(ctx, "ID token expired, clearing local cache",
			"home_account_id", identity.HomeAccountID,
			"expired_at", identity.IDTokenExpiresOn,
		)

		if err := m.ClearLocalCache(ctx); err != nil {
			return false, fmt.Errorf("clearing local cache: %w", err)
		}

		return false, nil
	}

	return true, nil
}

// ClearLocalCache deletes every cache entry whose key contains the key pattern.
func (m *Manager) ClearLocalCache(ctx context.Context) error {
	if !m.IsConfigured() || m.cache == nil {
		return nil
	}

	keys, err := m.cache.Keys(ctx)
	if err != nil {
		return fmt.Errorf("listing cache keys: %w", err)
	}

	matching := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.Contains(key, m.keyPattern) {
			matching = append(matching, key)
		}
	}

	if len(matching) == 0 {
		return nil
	}

	if err := m.cache.Delete(ctx, matching...); err != nil {
		return fmt.Errorf("deleting cache keys: %w", err)
	}

	slogctx.Debug(ctx, "Cleared local cache", "keys", len(matching))

	return nil
}

func (m *Manager) handle() (IdentityProvider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.provider, m.provider != nil
}
