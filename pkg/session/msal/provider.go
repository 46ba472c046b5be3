// Package sessionmsal backs the session manager with the Microsoft
// Authentication Library public client.
package sessionmsal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"github.com/pkg/browser"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

const defaultAuthorityHost = "https://login.microsoftonline.com/"

// client is the part of public.Client the provider uses.
type client interface {
	Accounts(ctx context.Context) ([]public.Account, error)
	RemoveAccount(ctx context.Context, account public.Account) error
	AcquireTokenSilent(ctx context.Context, scopes []string, opts ...public.AcquireSilentOption) (public.AuthResult, error)
	AcquireTokenInteractive(ctx context.Context, scopes []string, opts ...public.AcquireInteractiveOption) (public.AuthResult, error)
}

// Provider implements session.IdentityProvider with an MSAL public client.
type Provider struct {
	client      client
	clientID    string
	authority   string
	redirectURI string
	cache       session.Cache
	namespace   string
	openURL     func(string) error
}

type options struct {
	httpClient *http.Client
	openURL    func(string) error
}

type Option func(*options)

// WithHTTPClient sets the client used to talk to the authority.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithOpenURL replaces the system browser used for interactive flows.
func WithOpenURL(openURL func(string) error) Option {
	return func(o *options) {
		o.openURL = openURL
	}
}

// NewFactory returns a session.ProviderFactory building MSAL providers.
func NewFactory(opts ...Option) session.ProviderFactory {
	return func(ctx context.Context, cfg session.ProviderConfig, cache session.Cache) (session.IdentityProvider, error) {
		return New(ctx, cfg, cache, opts...)
	}
}

// New creates the MSAL public client. The token cache is persisted in cache
// when it is not nil.
func New(ctx context.Context, cfg session.ProviderConfig, cache session.Cache, opts ...Option) (*Provider, error) {
	o := options{
		httpClient: http.DefaultClient,
		openURL:    browser.OpenURL,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client id", serviceerr.ErrInvalidConfig)
	}

	authority := Authority(cfg)

	httpClient := &http.Client{
		Transport: &loggingTransport{next: o.httpClient.Transport},
		Timeout:   o.httpClient.Timeout,
	}

	clientOpts := []public.Option{
		public.WithAuthority(authority),
		public.WithHTTPClient(httpClient),
	}
	if cache != nil {
		clientOpts = append(clientOpts, public.WithCache(newTokenCache(cache, Namespace(cfg))))
	}

	pca, err := public.New(cfg.ClientID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating public client: %w", err)
	}

	slogctx.Debug(ctx, "Created MSAL public client", "authority", authority, "redirect_uri", cfg.RedirectURI)

	return &Provider{
		client:      pca,
		clientID:    cfg.ClientID,
		authority:   authority,
		redirectURI: cfg.RedirectURI,
		cache:       cache,
		namespace:   Namespace(cfg),
		openURL:     o.openURL,
	}, nil
}

// Namespace returns the prefix of the cache keys written for cfg.
func Namespace(cfg session.ProviderConfig) string {
	if cfg.CacheNamespace != "" {
		return cfg.CacheNamespace
	}

	return session.DefaultKeyPattern
}

// Authority returns the configured authority, or the tenant's one on the
// public cloud.
func Authority(cfg session.ProviderConfig) string {
	if cfg.Authority != "" {
		return cfg.Authority
	}

	return defaultAuthorityHost + cfg.TenantID
}

func (p *Provider) ClientID() string {
	return p.clientID
}

func (p *Provider) SignInInteractive(ctx context.Context, scopes []string) error {
	result, err := p.client.AcquireTokenInteractive(ctx, scopes, p.interactiveOptions(nil)...)
	if err != nil {
		return err
	}

	p.storeIDTokenExpiry(ctx, result)

	slogctx.Info(ctx, "Signed in", "username", result.Account.PreferredUsername)

	return nil
}

// SignOutInteractive opens the authority's logout page and removes the
// signed-in accounts from the token cache.
func (p *Provider) SignOutInteractive(ctx context.Context) error {
	accounts, err := p.client.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	if p.openURL != nil {
		if err := p.openURL(p.logoutURL()); err != nil {
			return fmt.Errorf("opening logout page: %w", err)
		}
	}

	for _, account := range accounts {
		if err := p.client.RemoveAccount(ctx, account); err != nil {
			return fmt.Errorf("removing account: %w", err)
		}

		if p.cache != nil {
			if err := p.cache.Delete(ctx, p.idTokenKey(account.HomeAccountID)); err != nil {
				slogctx.Warn(ctx, "Could not delete the ID token expiry", "error", err)
			}
		}
	}

	return nil
}

func (p *Provider) ListCachedIdentities(ctx context.Context) ([]session.Identity, error) {
	accounts, err := p.client.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	identities := make([]session.Identity, 0, len(accounts))
	for _, account := range accounts {
		identities = append(identities, session.Identity{
			HomeAccountID:    account.HomeAccountID,
			Username:         account.PreferredUsername,
			Name:             account.Name,
			TenantID:         account.Realm,
			IDTokenExpiresOn: p.idTokenExpiry(ctx, account.HomeAccountID),
		})
	}

	return identities, nil
}

func (p *Provider) AcquireTokenSilent(ctx context.Context, req session.TokenRequest) (session.AccessToken, error) {
	if req.Identity == nil {
		return session.AccessToken{}, serviceerr.RenewalRequired(errors.New("no signed-in account"))
	}

	account, err := p.account(ctx, req.Identity.HomeAccountID)
	if err != nil {
		return session.AccessToken{}, err
	}

	result, err := p.client.AcquireTokenSilent(ctx, req.Scopes, public.WithSilentAccount(account))
	if err != nil {
		return session.AccessToken{}, classify(err)
	}

	p.storeIDTokenExpiry(ctx, result)

	return accessToken(result), nil
}

func (p *Provider) AcquireTokenInteractive(ctx context.Context, req session.TokenRequest) (session.AccessToken, error) {
	result, err := p.client.AcquireTokenInteractive(ctx, req.Scopes, p.interactiveOptions(req.Identity)...)
	if err != nil {
		return session.AccessToken{}, err
	}

	p.storeIDTokenExpiry(ctx, result)

	return accessToken(result), nil
}

func (p *Provider) account(ctx context.Context, homeAccountID string) (public.Account, error) {
	accounts, err := p.client.Accounts(ctx)
	if err != nil {
		return public.Account{}, fmt.Errorf("listing accounts: %w", err)
	}

	for _, account := range accounts {
		if account.HomeAccountID == homeAccountID {
			return account, nil
		}
	}

	return public.Account{}, serviceerr.RenewalRequired(fmt.Errorf("account %s is not cached", homeAccountID))
}

func (p *Provider) interactiveOptions(identity *session.Identity) []public.AcquireInteractiveOption {
	var opts []public.AcquireInteractiveOption
	if p.redirectURI != "" {
		opts = append(opts, public.WithRedirectURI(p.redirectURI))
	}

	if p.openURL != nil {
		opts = append(opts, public.WithOpenURL(p.openURL))
	}

	if identity != nil && identity.Username != "" {
		opts = append(opts, public.WithLoginHint(identity.Username))
	}

	return opts
}

func (p *Provider) logoutURL() string {
	u := strings.TrimSuffix(p.authority, "/") + "/oauth2/v2.0/logout"
	if p.redirectURI == "" {
		return u
	}

	return u + "?" + url.Values{"post_logout_redirect_uri": {p.redirectURI}}.Encode()
}

// MSAL keeps ID token claims out of public.Account, so the expiry is
// remembered next to the token cache.
func (p *Provider) storeIDTokenExpiry(ctx context.Context, result public.AuthResult) {
	if p.cache == nil || result.Account.HomeAccountID == "" || result.IDToken.ExpirationTime == 0 {
		return
	}

	value := strconv.FormatInt(result.IDToken.ExpirationTime, 10)
	if err := p.cache.Set(ctx, p.idTokenKey(result.Account.HomeAccountID), []byte(value)); err != nil {
		slogctx.Warn(ctx, "Could not store the ID token expiry", "error", err)
	}
}

func (p *Provider) idTokenExpiry(ctx context.Context, homeAccountID string) time.Time {
	if p.cache == nil {
		return time.Time{}
	}

	value, err := p.cache.Get(ctx, p.idTokenKey(homeAccountID))
	if err != nil {
		if !errors.Is(err, serviceerr.ErrNotFound) {
			slogctx.Warn(ctx, "Could not read the ID token expiry", "error", err)
		}

		return time.Time{}
	}

	exp, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		slogctx.Warn(ctx, "Malformed ID token expiry", "error", err)
		return time.Time{}
	}

	return time.Unix(exp, 0)
}

func (p *Provider) idTokenKey(homeAccountID string) string {
	return p.namespace + ":idtoken:" + homeAccountID
}

func accessToken(result public.AuthResult) session.AccessToken {
	return session.AccessToken{
		Value:     result.AccessToken,
		Scopes:    result.GrantedScopes,
		ExpiresOn: result.ExpiresOn,
	}
}
