package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/session-client/pkg/session"
)

// Provider is a scripted session.IdentityProvider that counts its calls.
type Provider struct {
	mu sync.Mutex

	clientID       string
	identities     []session.Identity
	signInIdentity []session.Identity

	silentToken      session.AccessToken
	silentErr        error
	interactiveToken session.AccessToken
	interactiveErr   error
	signInErr        error
	signOutErr       error
	listErr          error

	// gate blocks the silent acquisition until it is closed
	gate <-chan struct{}

	FactoryCalls     int
	SilentCalls      int
	InteractiveCalls int
	SignInCalls      int
	SignOutCalls     int
	LastRequest      session.TokenRequest
	LastLoginScopes  []string
	LastConfig       session.ProviderConfig
}

type ProviderOption func(*Provider)

func WithClientID(clientID string) ProviderOption {
	return func(p *Provider) {
		p.clientID = clientID
	}
}

func WithIdentities(identities ...session.Identity) ProviderOption {
	return func(p *Provider) {
		p.identities = identities
	}
}

// WithSignInIdentities sets the identities cached after a successful SignInInteractive.
func WithSignInIdentities(identities ...session.Identity) ProviderOption {
	return func(p *Provider) {
		p.signInIdentity = identities
	}
}

func WithSilentResult(token session.AccessToken, err error) ProviderOption {
	return func(p *Provider) {
		p.silentToken = token
		p.silentErr = err
	}
}

func WithInteractiveResult(token session.AccessToken, err error) ProviderOption {
	return func(p *Provider) {
		p.interactiveToken = token
		p.interactiveErr = err
	}
}

func WithSignInError(err error) ProviderOption {
	return func(p *Provider) {
		p.signInErr = err
	}
}

func WithSignOutError(err error) ProviderOption {
	return func(p *Provider) {
		p.signOutErr = err
	}
}

func WithListError(err error) ProviderOption {
	return func(p *Provider) {
		p.listErr = err
	}
}

// WithGate holds every silent acquisition until gate is closed.
func WithGate(gate <-chan struct{}) ProviderOption {
	return func(p *Provider) {
		p.gate = gate
	}
}

func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{clientID: "client-id"}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Factory returns a session.ProviderFactory handing out p. Every call is
// counted in FactoryCalls and fails with err when it is set.
func (p *Provider) Factory(err error) session.ProviderFactory {
	return func(_ context.Context, cfg session.ProviderConfig, _ session.Cache) (session.IdentityProvider, error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.FactoryCalls++
		p.LastConfig = cfg
		if err != nil {
			return nil, err
		}

		return p, nil
	}
}

func (p *Provider) ClientID() string {
	return p.clientID
}

func (p *Provider) SignInInteractive(_ context.Context, scopes []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SignInCalls++
	p.LastLoginScopes = scopes
	if p.signInErr != nil {
		return p.signInErr
	}

	if p.signInIdentity != nil {
		p.identities = p.signInIdentity
	}

	return nil
}

func (p *Provider) SignOutInteractive(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SignOutCalls++

	return p.signOutErr
}

func (p *Provider) ListCachedIdentities(_ context.Context) ([]session.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listErr != nil {
		return nil, p.listErr
	}

	return append([]session.Identity(nil), p.identities...), nil
}

func (p *Provider) AcquireTokenSilent(ctx context.Context, req session.TokenRequest) (session.AccessToken, error) {
	p.mu.Lock()
	p.SilentCalls++
	p.LastRequest = req
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return session.AccessToken{}, ctx.Err()
		}
	}

	return p.silentToken, p.silentErr
}

func (p *Provider) AcquireTokenInteractive(_ context.Context, req session.TokenRequest) (session.AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.InteractiveCalls++
	p.LastRequest = req

	return p.interactiveToken, p.interactiveErr
}

// SetSilentResult replaces the scripted silent acquisition result.
func (p *Provider) SetSilentResult(token session.AccessToken, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.silentToken = token
	p.silentErr = err
}

// Calls returns the silent and interactive call counts.
func (p *Provider) Calls() (silent, interactive int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.SilentCalls, p.InteractiveCalls
}
