// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/openkcm/session-client/internal/serviceerr"
)

const (
	ProviderMSAL = "msal"
	ProviderOIDC = "oidc"

	CacheLocationValkey = "valkey"
	CacheLocationMemory = "memory"

	HTTPClientDefault = "default"
	HTTPClientMTLS    = "mtls"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Identity Identity `yaml:"identity"`
	Cache    Cache    `yaml:"cache"`
	ValKey   ValKey   `yaml:"valkey"`
	Session  Session  `yaml:"session"`
}

type Identity struct {
	// Provider selects the adapter backing the session: msal or oidc.
	Provider  string              `yaml:"provider" default:"msal"`
	TenantID  string              `yaml:"tenantID"`
	ClientID  commoncfg.SourceRef `yaml:"clientID"`
	Authority string              `yaml:"authority"`
	IssuerURL string              `yaml:"issuerURL"`

	// RedirectURI is used unless the environment variable named by
	// RedirectURIEnv is set.
	RedirectURI    string `yaml:"redirectURI" default:"http://localhost:5173"`
	RedirectURIEnv string `yaml:"redirectURIEnv" default:"AZURE_AUTH_REDIRECT_URI"`

	LoginScopes []string   `yaml:"loginScopes"`
	HTTPClient  HTTPClient `yaml:"httpClient"`
}

// HTTPClient configures the client talking to the identity provider.
type HTTPClient struct {
	Type    string          `yaml:"type" default:"default"`
	Timeout time.Duration   `yaml:"timeout" default:"30s"`
	MTLS    *commoncfg.MTLS `yaml:"mtls"`
}

type Cache struct {
	Location   string `yaml:"location" default:"valkey"`
	KeyPattern string `yaml:"keyPattern" default:"login.windows"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix" default:"session-client"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type Session struct {
	AcquireTimeout  time.Duration `yaml:"acquireTimeout" default:"2m"`
	RefreshInterval time.Duration `yaml:"refreshInterval" default:"5m"`
}

// ResolveRedirectURI returns the redirect URI, preferring the environment.
func (i Identity) ResolveRedirectURI() string {
	if i.RedirectURIEnv != "" {
		if uri, ok := os.LookupEnv(i.RedirectURIEnv); ok && uri != "" {
			return uri
		}
	}

	return i.RedirectURI
}

// ResolveAuthority returns the address the selected provider authenticates
// against. An empty MSAL authority is derived from the tenant by the adapter.
func (i Identity) ResolveAuthority() string {
	if i.Provider == ProviderOIDC {
		return i.IssuerURL
	}

	return i.Authority
}

// Validate checks the settings the defaults cannot fill in.
func (c *Config) Validate() error {
	switch c.Identity.Provider {
	case ProviderMSAL:
		if c.Identity.TenantID == "" && c.Identity.Authority == "" {
			return fmt.Errorf("%w: identity.tenantID or identity.authority is required", serviceerr.ErrInvalidConfig)
		}
	case ProviderOIDC:
		if c.Identity.IssuerURL == "" {
			return fmt.Errorf("%w: identity.issuerURL is required", serviceerr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown identity provider %q", serviceerr.ErrInvalidConfig, c.Identity.Provider)
	}

	switch c.Identity.HTTPClient.Type {
	case "", HTTPClientDefault:
	case HTTPClientMTLS:
		if c.Identity.HTTPClient.MTLS == nil {
			return fmt.Errorf("%w: identity.httpClient.mtls is required", serviceerr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown http client type %q", serviceerr.ErrInvalidConfig, c.Identity.HTTPClient.Type)
	}

	switch c.Cache.Location {
	case CacheLocationValkey, CacheLocationMemory:
	default:
		return fmt.Errorf("%w: unknown cache location %q", serviceerr.ErrInvalidConfig, c.Cache.Location)
	}

	if c.Cache.KeyPattern == "" {
		return fmt.Errorf("%w: cache.keyPattern must not be empty", serviceerr.ErrInvalidConfig)
	}

	return nil
}
