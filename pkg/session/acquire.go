package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
)

const (
	acquireFlightKey = "access-token"

	pathSilent      = "silent"
	pathInteractive = "interactive"
)

// AcquireToken returns an access token for the current identity, trying the
// silent flow first and falling back to the interactive one when the provider
// asks for renewal. Concurrent calls share one acquisition.
func (m *Manager) AcquireToken(ctx context.Context) (AccessToken, error) {
	res := <-m.AcquireTokenAsync(ctx)
	return res.Token, res.Err
}

// AcquireTokenAsync starts or joins an acquisition. The returned channel
// yields exactly one result and is then closed. Cancelling ctx abandons the
// wait; the shared acquisition keeps running for the other callers.
func (m *Manager) AcquireTokenAsync(ctx context.Context) <-chan TokenResult {
	out := make(chan TokenResult, 1)

	provider, ok := m.handle()
	if !ok {
		out <- TokenResult{Err: serviceerr.ErrNotConfigured}
		close(out)
		return out
	}

	flight := m.flight.DoChan(acquireFlightKey, func() (any, error) {
		flightCtx, cancel := m.flightContext(ctx)
		defer cancel()

		return m.acquire(flightCtx, provider)
	})

	go func() {
		defer close(out)

		out <- waitFlight(ctx, flight)
	}()

	return out
}

// waitFlight prefers a settled flight over the caller's cancellation.
func waitFlight(ctx context.Context, flight <-chan singleflight.Result) TokenResult {
	select {
	case res := <-flight:
		return flightResult(res)
	case <-ctx.Done():
		select {
		case res := <-flight:
			return flightResult(res)
		default:
			return TokenResult{Err: ctx.Err()}
		}
	}
}

func flightResult(res singleflight.Result) TokenResult {
	if res.Err != nil {
		return TokenResult{Err: res.Err}
	}

	token, _ := res.Val.(AccessToken)

	return TokenResult{Token: token}
}

// OnTokenReady queues fn to run with the next acquired token. The queue is
// drained in registration order once the token is stored.
func (m *Manager) OnTokenReady(fn func(AccessToken)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = append(m.pending, fn)
}

// Token returns the last acquired token.
func (m *Manager) Token() (AccessToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token, m.hasToken
}

// InProgress reports whether a provider round trip is running.
func (m *Manager) InProgress() bool {
	return m.inProgress.Load()
}

func (m *Manager) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if m.acquireTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, m.acquireTimeout)
}

func (m *Manager) acquire(ctx context.Context, provider IdentityProvider) (AccessToken, error) {
	ctx = slogctx.With(ctx, "correlation_id", uuid.NewString())
	start := time.Now()

	ctx, span := m.metrics.startSpan(ctx)

	token, path, err := m.requestToken(ctx, provider)
	if err == nil && token.IsZero() {
		slogctx.Error(ctx, "Provider returned no access token", "path", path)
		err = serviceerr.ErrMissingAccessToken
	}

	m.metrics.record(ctx, path, err, time.Since(start))
	endSpan(span, path, err)

	if err != nil {
		return AccessToken{}, err
	}

	m.mu.Lock()
	m.token = token
	m.hasToken = true
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	// Callbacks may acquire again; they must start a new flight instead of
	// joining this one.
	m.flight.Forget(acquireFlightKey)

	for _, fn := range pending {
		fn(token)
	}

	slogctx.Info(ctx, "Acquired access token", "path", path, "expires_on", token.ExpiresOn, "callbacks", len(pending))

	return token, nil
}

// requestToken runs the provider round trip while the in-progress flag is set.
func (m *Manager) requestToken(ctx context.Context, provider IdentityProvider) (AccessToken, string, error) {
	m.inProgress.Store(true)
	defer m.inProgress.Store(false)

	identity, err := m.CurrentUser(ctx)
	if err != nil {
		return AccessToken{}, pathSilent, err
	}

	req := TokenRequest{
		Scopes:   []string{provider.ClientID() + "/.default"},
		Identity: identity,
	}

	token, err := provider.AcquireTokenSilent(ctx, req)
	if err == nil {
		return token, pathSilent, nil
	}

	if !serviceerr.IsRenewalRequired(err) {
		slogctx.Warn(ctx, "Silent token acquisition failed", "error", err)
		return AccessToken{}, pathSilent, err
	}

	slogctx.Debug(ctx, "Silent token acquisition needs renewal, falling back to interactive", "error", err)

	token, err = provider.AcquireTokenInteractive(ctx, req)
	if err != nil {
		return AccessToken{}, pathInteractive, err
	}

	return token, pathInteractive, nil
}
