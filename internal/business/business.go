// Package business wires the session manager from the configuration and
// implements the commands of the session client.
package business

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/appstate"
	"github.com/openkcm/session-client/pkg/session"
	sessionmemory "github.com/openkcm/session-client/pkg/session/memory"
	sessionmsal "github.com/openkcm/session-client/pkg/session/msal"
	sessionoidc "github.com/openkcm/session-client/pkg/session/oidc"
	sessionvalkey "github.com/openkcm/session-client/pkg/session/valkey"
)

// clientSession bundles what every command needs.
type clientSession struct {
	manager *session.Manager
	state   *appstate.Store
	cache   session.Cache
	closeFn func()
}

func (s *clientSession) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

func initSession(ctx context.Context, cfg *config.Config) (*clientSession, error) {
	httpClient, err := loadHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading http client: %w", err)
	}

	factory, err := providerFactory(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	cache, closeFn, err := newCache(cfg)
	if err != nil {
		return nil, err
	}

	s, err := newClientSession(cfg, factory, cache)
	if err != nil {
		closeFn()
		return nil, err
	}

	s.closeFn = closeFn

	slogctx.Debug(ctx, "Initialised the session",
		"provider", cfg.Identity.Provider,
		"cache_location", cfg.Cache.Location,
	)

	return s, nil
}

func newClientSession(cfg *config.Config, factory session.ProviderFactory, cache session.Cache) (*clientSession, error) {
	providerCfg, err := providerConfig(cfg)
	if err != nil {
		return nil, err
	}

	state := appstate.New(appstate.WithCache(cache))

	manager, err := session.NewManager(factory, providerCfg, cache, state,
		session.WithKeyPattern(cfg.Cache.KeyPattern),
		session.WithAcquireTimeout(cfg.Session.AcquireTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	return &clientSession{
		manager: manager,
		state:   state,
		cache:   cache,
	}, nil
}

func providerConfig(cfg *config.Config) (session.ProviderConfig, error) {
	clientID, err := commoncfg.LoadValueFromSourceRef(cfg.Identity.ClientID)
	if err != nil {
		return session.ProviderConfig{}, fmt.Errorf("loading client id: %w", err)
	}

	return session.ProviderConfig{
		TenantID:       cfg.Identity.TenantID,
		ClientID:       string(clientID),
		RedirectURI:    cfg.Identity.ResolveRedirectURI(),
		Authority:      cfg.Identity.ResolveAuthority(),
		LoginScopes:    cfg.Identity.LoginScopes,
		CacheLocation:  cfg.Cache.Location,
		CacheNamespace: cfg.Cache.KeyPattern,
	}, nil
}

func providerFactory(cfg *config.Config, httpClient *http.Client) (session.ProviderFactory, error) {
	switch cfg.Identity.Provider {
	case config.ProviderMSAL:
		return sessionmsal.NewFactory(sessionmsal.WithHTTPClient(httpClient)), nil
	case config.ProviderOIDC:
		return sessionoidc.NewFactory(sessionoidc.WithHTTPClient(httpClient)), nil
	default:
		return nil, fmt.Errorf("%w: unknown identity provider %q", serviceerr.ErrInvalidConfig, cfg.Identity.Provider)
	}
}

func newCache(cfg *config.Config) (session.Cache, func(), error) {
	switch cfg.Cache.Location {
	case config.CacheLocationMemory:
		return sessionmemory.NewCache(), func() {}, nil
	case config.CacheLocationValkey:
		valkeyClient, err := valkeyClientFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}

		return sessionvalkey.NewCache(valkeyClient, cfg.ValKey.Prefix), valkeyClient.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown cache location %q", serviceerr.ErrInvalidConfig, cfg.Cache.Location)
	}
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := loadOptionalValue(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := loadOptionalValue(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
		// Entries are read once per command; client side caching buys nothing.
		DisableCache: true,
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

func loadOptionalValue(ref commoncfg.SourceRef) ([]byte, error) {
	if ref.Source == "" {
		return nil, nil
	}

	return commoncfg.LoadValueFromSourceRef(ref)
}

func loadHTTPClient(cfg *config.Config) (*http.Client, error) {
	clientCfg := cfg.Identity.HTTPClient

	switch clientCfg.Type {
	case "", config.HTTPClientDefault:
		return &http.Client{Timeout: clientCfg.Timeout}, nil
	case config.HTTPClientMTLS:
		if clientCfg.MTLS == nil {
			return nil, fmt.Errorf("%w: missing mTLS settings", serviceerr.ErrInvalidConfig)
		}

		tlsConfig, err := commoncfg.LoadMTLSConfig(clientCfg.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading mTLS config: %w", err)
		}

		return &http.Client{
			Timeout:   clientCfg.Timeout,
			Transport: mtlsTransport(tlsConfig),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown http client type %q", serviceerr.ErrInvalidConfig, clientCfg.Type)
	}
}

func mtlsTransport(tlsConfig *tls.Config) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return transport
}
