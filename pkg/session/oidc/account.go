package sessionoidc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/session"
)

// account is the cache record of a signed-in user.
type account struct {
	Subject      string    `json:"sub"`
	Username     string    `json:"username,omitempty"`
	Name         string    `json:"name,omitempty"`
	TenantID     string    `json:"tid,omitempty"`
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// idTokenClaims are the profile claims read from a verified ID token.
type idTokenClaims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	TenantID          string `json:"tid"`
}

func (c idTokenClaims) username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}

	return c.Email
}

func (a account) accessToken() session.AccessToken {
	return session.AccessToken{
		Value:     a.AccessToken,
		Scopes:    a.Scopes,
		ExpiresOn: a.Expiry,
	}
}

func (p *Provider) accountPrefix() string {
	return p.namespace + ":account:"
}

func (p *Provider) accountKey(subject string) string {
	return p.accountPrefix() + subject
}

func (p *Provider) loadAccount(ctx context.Context, subject string) (account, error) {
	data, err := p.cache.Get(ctx, p.accountKey(subject))
	if err != nil {
		return account{}, fmt.Errorf("reading account %s: %w", subject, err)
	}

	var acct account
	if err := json.Unmarshal(data, &acct); err != nil {
		return account{}, fmt.Errorf("decoding account %s: %w", subject, err)
	}

	return acct, nil
}

func (p *Provider) storeAccount(ctx context.Context, acct account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encoding account: %w", err)
	}

	if err := p.cache.Set(ctx, p.accountKey(acct.Subject), data); err != nil {
		return fmt.Errorf("writing account: %w", err)
	}

	return nil
}

// accounts returns the cached accounts ordered by key. Records that cannot
// be decoded are skipped.
func (p *Provider) accounts(ctx context.Context) ([]account, error) {
	keys, err := p.cache.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cache keys: %w", err)
	}

	sort.Strings(keys)

	prefix := p.accountPrefix()
	accounts := make([]account, 0, len(keys))
	for _, key := range keys {
		subject, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}

		acct, err := p.loadAccount(ctx, subject)
		if err != nil {
			slogctx.Warn(ctx, "Skipping unreadable account", "key", key, "error", err)
			continue
		}

		accounts = append(accounts, acct)
	}

	return accounts, nil
}

// updateAccount folds a refreshed token into acct and stores it. Issuers may
// omit the ID token and the refresh token on refresh; the previous ones are kept.
func (p *Provider) updateAccount(ctx context.Context, acct *account, token *oauth2.Token, scopes []string) error {
	acct.AccessToken = token.AccessToken
	acct.Expiry = token.Expiry
	acct.Scopes = grantedScopes(token, scopes)

	if token.RefreshToken != "" {
		acct.RefreshToken = token.RefreshToken
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		if _, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken); err != nil {
			return fmt.Errorf("verifying refreshed id token: %w", err)
		}

		acct.IDToken = rawIDToken
	}

	return p.storeAccount(ctx, *acct)
}

// idTokenExpiry reads the exp claim of a cached ID token. The token was
// verified when it was stored, so the signature is not checked again.
func (p *Provider) idTokenExpiry(ctx context.Context, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	tok, err := jwt.ParseSigned(raw, p.sigAlgs)
	if err != nil {
		slogctx.Warn(ctx, "Failed to parse cached id token", "error", err)
		return time.Time{}
	}

	var claims jwt.Claims
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		slogctx.Warn(ctx, "Failed to read cached id token claims", "error", err)
		return time.Time{}
	}

	if claims.Expiry == nil {
		return time.Time{}
	}

	return claims.Expiry.Time()
}

func grantedScopes(token *oauth2.Token, requested []string) []string {
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		return strings.Fields(scope)
	}

	return requested
}
