package config_test

import (
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/internal/serviceerr"
)

func validConfig() *config.Config {
	return &config.Config{
		Identity: config.Identity{
			Provider: config.ProviderMSAL,
			TenantID: "tenant",
		},
		Cache: config.Cache{
			Location:   config.CacheLocationValkey,
			KeyPattern: "login.windows",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	invalidConfig := func(t assert.TestingT, err error, _ ...any) bool {
		return assert.ErrorIs(t, err, serviceerr.ErrInvalidConfig)
	}

	tests := []struct {
		name      string
		modify    func(cfg *config.Config)
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:      "Valid msal config",
			modify:    func(*config.Config) {},
			assertErr: assert.NoError,
		},
		{
			name: "Msal with explicit authority",
			modify: func(cfg *config.Config) {
				cfg.Identity.TenantID = ""
				cfg.Identity.Authority = "https://login.microsoftonline.com/organizations"
			},
			assertErr: assert.NoError,
		},
		{
			name: "Msal without tenant nor authority",
			modify: func(cfg *config.Config) {
				cfg.Identity.TenantID = ""
			},
			assertErr: invalidConfig,
		},
		{
			name: "Valid oidc config",
			modify: func(cfg *config.Config) {
				cfg.Identity.Provider = config.ProviderOIDC
				cfg.Identity.IssuerURL = "https://issuer.example.com"
			},
			assertErr: assert.NoError,
		},
		{
			name: "Oidc without issuer",
			modify: func(cfg *config.Config) {
				cfg.Identity.Provider = config.ProviderOIDC
			},
			assertErr: invalidConfig,
		},
		{
			name: "Unknown provider",
			modify: func(cfg *config.Config) {
				cfg.Identity.Provider = "saml"
			},
			assertErr: invalidConfig,
		},
		{
			name: "Mtls http client without certificates",
			modify: func(cfg *config.Config) {
				cfg.Identity.HTTPClient.Type = config.HTTPClientMTLS
			},
			assertErr: invalidConfig,
		},
		{
			name: "Mtls http client",
			modify: func(cfg *config.Config) {
				cfg.Identity.HTTPClient.Type = config.HTTPClientMTLS
				cfg.Identity.HTTPClient.MTLS = &commoncfg.MTLS{}
			},
			assertErr: assert.NoError,
		},
		{
			name: "Unknown http client",
			modify: func(cfg *config.Config) {
				cfg.Identity.HTTPClient.Type = "basic"
			},
			assertErr: invalidConfig,
		},
		{
			name: "Memory cache",
			modify: func(cfg *config.Config) {
				cfg.Cache.Location = config.CacheLocationMemory
			},
			assertErr: assert.NoError,
		},
		{
			name: "Unknown cache location",
			modify: func(cfg *config.Config) {
				cfg.Cache.Location = "localStorage"
			},
			assertErr: invalidConfig,
		},
		{
			name: "Empty key pattern",
			modify: func(cfg *config.Config) {
				cfg.Cache.KeyPattern = ""
			},
			assertErr: invalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			tt.assertErr(t, cfg.Validate())
		})
	}
}

func TestIdentity_ResolveRedirectURI(t *testing.T) {
	const envVar = "SESSION_CLIENT_TEST_REDIRECT_URI"

	tests := []struct {
		name     string
		identity config.Identity
		env      string
		want     string
	}{
		{
			name:     "Configured value",
			identity: config.Identity{RedirectURI: "http://localhost:5173", RedirectURIEnv: envVar},
			want:     "http://localhost:5173",
		},
		{
			name:     "Environment wins",
			identity: config.Identity{RedirectURI: "http://localhost:5173", RedirectURIEnv: envVar},
			env:      "http://127.0.0.1:8400/callback",
			want:     "http://127.0.0.1:8400/callback",
		},
		{
			name:     "No environment variable name",
			identity: config.Identity{RedirectURI: "http://localhost:5173"},
			env:      "http://127.0.0.1:8400/callback",
			want:     "http://localhost:5173",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envVar, tt.env)

			assert.Equal(t, tt.want, tt.identity.ResolveRedirectURI())
		})
	}
}

func TestIdentity_ResolveAuthority(t *testing.T) {
	identity := config.Identity{
		Authority: "https://login.microsoftonline.com/tenant",
		IssuerURL: "https://issuer.example.com",
	}

	identity.Provider = config.ProviderMSAL
	assert.Equal(t, "https://login.microsoftonline.com/tenant", identity.ResolveAuthority())

	identity.Provider = config.ProviderOIDC
	assert.Equal(t, "https://issuer.example.com", identity.ResolveAuthority())
}
