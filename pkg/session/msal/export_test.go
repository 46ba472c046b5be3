package sessionmsal

import (
	"reflect"

	"github.com/pkg/browser"

	"github.com/openkcm/session-client/pkg/session"
)

type Client = client

func NewWithClient(c Client, cfg session.ProviderConfig, cache session.Cache, openURL func(string) error) *Provider {
	return &Provider{
		client:      c,
		clientID:    cfg.ClientID,
		authority:   Authority(cfg),
		redirectURI: cfg.RedirectURI,
		cache:       cache,
		namespace:   Namespace(cfg),
		openURL:     openURL,
	}
}

var Classify = classify

func NewTokenCache(c session.Cache) *tokenCache {
	return newTokenCache(c, session.DefaultKeyPattern)
}

// OpensSystemBrowser reports whether p hands URLs to the system browser.
func OpensSystemBrowser(p *Provider) bool {
	return p.openURL != nil && reflect.ValueOf(p.openURL).Pointer() == reflect.ValueOf(browser.OpenURL).Pointer()
}

// SetClient replaces the MSAL client and keeps every other setting of p.
func SetClient(p *Provider, c Client) {
	p.client = c
}
