package sessionmsal

import (
	"context"
	"errors"
	"net"
	"net/http"

	msalerrors "github.com/AzureAD/microsoft-authentication-library-for-go/apps/errors"

	"github.com/openkcm/session-client/internal/serviceerr"
)

// classify tags a silent acquisition failure. Only failures of the
// authority itself are unrecoverable; everything else (no cached refresh
// token, invalid_grant, interaction_required) asks for an interactive login.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var callErr msalerrors.CallErr
	if errors.As(err, &callErr) && callErr.Resp != nil && callErr.Resp.StatusCode >= http.StatusInternalServerError {
		return serviceerr.ProviderUnavailable(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return serviceerr.ProviderUnavailable(err)
	}

	return serviceerr.RenewalRequired(err)
}
