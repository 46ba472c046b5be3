// Package sessionoidc backs the session manager with any OpenID Connect
// provider, using the authorization code flow with PKCE on a loopback
// redirect for interactive logins and the refresh token grant for silent ones.
package sessionoidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/pkce"
	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

// Provider implements session.IdentityProvider for an OpenID Connect issuer.
type Provider struct {
	clientID    string
	redirectURI string
	namespace   string

	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	endpoint   oauth2.Endpoint
	endSession string
	sigAlgs    []jose.SignatureAlgorithm

	cache      session.Cache
	pkce       pkce.Source
	httpClient *http.Client
	openURL    func(string) error
}

type options struct {
	httpClient *http.Client
	openURL    func(string) error
}

type Option func(*options)

// WithHTTPClient sets the client used for discovery and token requests.
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

// NewFactory returns a session.ProviderFactory building OIDC providers.
func NewFactory(opts ...Option) session.ProviderFactory {
	return func(ctx context.Context, cfg session.ProviderConfig, cache session.Cache) (session.IdentityProvider, error) {
		return New(ctx, cfg, cache, opts...)
	}
}

// New discovers the issuer named by cfg.Authority. The cache is required: it
// holds the signed-in accounts and their tokens.
func New(ctx context.Context, cfg session.ProviderConfig, cache session.Cache, opts ...Option) (*Provider, error) {
	o := options{
		httpClient: http.DefaultClient,
		openURL:    browser.OpenURL,
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case cfg.ClientID == "":
		return nil, fmt.Errorf("%w: missing client id", serviceerr.ErrInvalidConfig)
	case cfg.Authority == "":
		return nil, fmt.Errorf("%w: missing issuer url", serviceerr.ErrInvalidConfig)
	case cache == nil:
		return nil, fmt.Errorf("%w: missing cache", serviceerr.ErrInvalidConfig)
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, o.httpClient), cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("discovering issuer: %w", err)
	}

	var metadata struct {
		EndSessionEndpoint string   `json:"end_session_endpoint"`
		SigningAlgs        []string `json:"id_token_signing_alg_values_supported"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("decoding issuer metadata: %w", err)
	}

	sigAlgs := make([]jose.SignatureAlgorithm, 0, len(metadata.SigningAlgs))
	for _, alg := range metadata.SigningAlgs {
		sigAlgs = append(sigAlgs, jose.SignatureAlgorithm(alg))
	}
	if len(sigAlgs) == 0 {
		sigAlgs = append(sigAlgs, jose.RS256)
	}

	namespace := cfg.CacheNamespace
	if namespace == "" {
		namespace = session.DefaultKeyPattern
	}

	slogctx.Debug(ctx, "Discovered OIDC issuer", "issuer", cfg.Authority, "redirect_uri", cfg.RedirectURI)

	return &Provider{
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
		namespace:   namespace,
		provider:    provider,
		verifier:    provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		endpoint:    provider.Endpoint(),
		endSession:  metadata.EndSessionEndpoint,
		sigAlgs:     sigAlgs,
		cache:       cache,
		httpClient:  o.httpClient,
		openURL:     o.openURL,
	}, nil
}

func (p *Provider) ClientID() string {
	return p.clientID
}

func (p *Provider) SignInInteractive(ctx context.Context, scopes []string) error {
	acct, err := p.authorize(ctx, scopes, "")
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Signed in", "username", acct.Username)

	return nil
}

// SignOutInteractive opens the issuer's end session page, when it has one,
// and forgets the signed-in accounts.
func (p *Provider) SignOutInteractive(ctx context.Context) error {
	accounts, err := p.accounts(ctx)
	if err != nil {
		return err
	}

	if p.endSession != "" && len(accounts) > 0 {
		if err := p.openURL(p.logoutURL(accounts[0])); err != nil {
			return fmt.Errorf("opening logout page: %w", err)
		}
	}

	keys := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		keys = append(keys, p.accountKey(acct.Subject))
	}

	if err := p.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("deleting accounts: %w", err)
	}

	return nil
}

func (p *Provider) ListCachedIdentities(ctx context.Context) ([]session.Identity, error) {
	accounts, err := p.accounts(ctx)
	if err != nil {
		return nil, err
	}

	identities := make([]session.Identity, 0, len(accounts))
	for _, acct := range accounts {
		identities = append(identities, session.Identity{
			HomeAccountID:    acct.Subject,
			Username:         acct.Username,
			Name:             acct.Name,
			TenantID:         acct.TenantID,
			IDTokenExpiresOn: p.idTokenExpiry(ctx, acct.IDToken),
		})
	}

	return identities, nil
}

// AcquireTokenSilent serves the cached access token while it is valid and
// redeems the refresh token otherwise.
func (p *Provider) AcquireTokenSilent(ctx context.Context, req session.TokenRequest) (session.AccessToken, error) {
	if req.Identity == nil {
		return session.AccessToken{}, serviceerr.RenewalRequired(errors.New("no signed-in account"))
	}

	acct, err := p.loadAccount(ctx, req.Identity.HomeAccountID)
	if errors.Is(err, serviceerr.ErrNotFound) {
		return session.AccessToken{}, serviceerr.RenewalRequired(err)
	}
	if err != nil {
		return session.AccessToken{}, err
	}

	cached := &oauth2.Token{AccessToken: acct.AccessToken, Expiry: acct.Expiry}
	if cached.Valid() && containsAll(acct.Scopes, req.Scopes) {
		return acct.accessToken(), nil
	}

	if acct.RefreshToken == "" {
		return session.AccessToken{}, serviceerr.RenewalRequired(errors.New("no refresh token"))
	}

	cfg := p.oauthConfig(req.Scopes, p.redirectURI)
	token, err := cfg.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: acct.RefreshToken}).Token()
	if err != nil {
		return session.AccessToken{}, classify(err)
	}

	if err := p.updateAccount(ctx, &acct, token, req.Scopes); err != nil {
		return session.AccessToken{}, err
	}

	return acct.accessToken(), nil
}

func (p *Provider) AcquireTokenInteractive(ctx context.Context, req session.TokenRequest) (session.AccessToken, error) {
	loginHint := ""
	if req.Identity != nil {
		loginHint = req.Identity.Username
	}

	acct, err := p.authorize(ctx, req.Scopes, loginHint)
	if err != nil {
		return session.AccessToken{}, err
	}

	return acct.accessToken(), nil
}

func (p *Provider) oauthConfig(scopes []string, redirectURI string) *oauth2.Config {
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	return &oauth2.Config{
		ClientID:    p.clientID,
		Endpoint:    p.endpoint,
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.httpClient)
}

func (p *Provider) logoutURL(acct account) string {
	q := url.Values{"client_id": {p.clientID}}
	if acct.IDToken != "" {
		q.Set("id_token_hint", acct.IDToken)
	}
	if p.redirectURI != "" {
		q.Set("post_logout_redirect_uri", p.redirectURI)
	}

	sep := "?"
	if strings.Contains(p.endSession, "?") {
		sep = "&"
	}

	return p.endSession + sep + q.Encode()
}

func containsAll(have, want []string) bool {
	for _, s := range want {
		if !slices.Contains(have, s) {
			return false
		}
	}

	return true
}
