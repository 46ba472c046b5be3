package sessionoidc

import (
	"context"
	"errors"
	"net"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/openkcm/session-client/internal/serviceerr"
)

// classify tags a token endpoint failure. OAuth error codes decide when the
// issuer sent one; otherwise server errors and transport failures are
// unrecoverable and anything else asks for an interactive login.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			return serviceerr.FromOAuthCode(retrieveErr.ErrorCode, err)
		}

		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return serviceerr.ProviderUnavailable(err)
		}

		return serviceerr.RenewalRequired(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return serviceerr.ProviderUnavailable(err)
	}

	return serviceerr.RenewalRequired(err)
}
