package sessionoidc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
)

const (
	callbackReadHeaderTimeout = 10 * time.Second
	callbackShutdownTimeout   = 5 * time.Second
)

type callbackResult struct {
	code string
	err  error
}

// authorize runs the authorization code flow with PKCE: it serves the
// redirect URI on the loopback interface, opens the login page and redeems
// the code the browser is redirected back with.
func (p *Provider) authorize(ctx context.Context, scopes []string, loginHint string) (account, error) {
	redirect, err := loopbackRedirect(p.redirectURI)
	if err != nil {
		return account{}, err
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", redirect.Host)
	if err != nil {
		return account{}, fmt.Errorf("listening on redirect uri: %w", err)
	}

	// Port 0 lets the system pick one; loopback redirects may use any port.
	if redirect.Port() == "0" {
		redirect.Host = ln.Addr().String()
	}

	state := p.pkce.State()
	nonce := p.pkce.Nonce()
	verifier := p.pkce.PKCE()

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(redirect.Path, state, results),
		ReadHeaderTimeout: callbackReadHeaderTimeout,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Redirect listener failed", "error", err)
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callbackShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slogctx.Warn(ctx, "Failed to stop redirect listener", "error", err)
		}
	}()

	cfg := p.oauthConfig(scopes, redirect.String())

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", verifier.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", verifier.Method),
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oidc.Nonce(nonce),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}

	slogctx.Info(ctx, "Opening login page", "redirect_uri", redirect.String())

	if err := p.openURL(cfg.AuthCodeURL(state, opts...)); err != nil {
		return account{}, fmt.Errorf("opening login page: %w", err)
	}

	var code string
	select {
	case <-ctx.Done():
		return account{}, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return account{}, res.err
		}
		code = res.code
	}

	token, err := cfg.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier.Verifier))
	if err != nil {
		return account{}, fmt.Errorf("redeeming authorization code: %w", classify(err))
	}

	return p.signedIn(ctx, token, nonce, scopes)
}

// signedIn verifies the ID token of a fresh login and stores the account.
func (p *Provider) signedIn(ctx context.Context, token *oauth2.Token, nonce string, scopes []string) (account, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return account{}, errors.New("token response carries no id_token")
	}

	idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
	if err != nil {
		return account{}, fmt.Errorf("verifying id token: %w", err)
	}

	if idToken.Nonce != nonce {
		return account{}, errors.New("id token nonce does not match the authorization request")
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return account{}, fmt.Errorf("decoding id token claims: %w", err)
	}

	acct := account{
		Subject:      idToken.Subject,
		Username:     claims.username(),
		Name:         claims.Name,
		TenantID:     claims.TenantID,
		IDToken:      rawIDToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Scopes:       grantedScopes(token, scopes),
	}

	if err := p.storeAccount(ctx, acct); err != nil {
		return account{}, err
	}

	return acct, nil
}

func callbackHandler(path, state string, results chan<- callbackResult) http.Handler {
	if path == "" {
		path = "/"
	}

	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Unknown sign-in request.", http.StatusBadRequest)
			return
		}

		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = serviceerr.FromOAuthCode(q.Get("error"),
				fmt.Errorf("authorization failed: %s", q.Get("error_description")))
		case q.Get("code") == "":
			res.err = errors.New("callback carries no authorization code")
		default:
			res.code = q.Get("code")
		}

		once.Do(func() {
			results <- res
		})

		if res.err != nil {
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
			return
		}

		_, _ = fmt.Fprintln(w, "Signed in. You can close this window.")
	})

	return mux
}

func loopbackRedirect(raw string) (*url.URL, error) {
	redirect, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing redirect uri: %w", serviceerr.ErrInvalidConfig, err)
	}

	host := redirect.Hostname()
	ip := net.ParseIP(host)
	if redirect.Scheme != "http" || redirect.Port() == "" || (host != "localhost" && (ip == nil || !ip.IsLoopback())) {
		return nil, fmt.Errorf("%w: redirect uri %q must be an http loopback address with a port",
			serviceerr.ErrInvalidConfig, raw)
	}

	return redirect, nil
}
