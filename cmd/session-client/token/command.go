package token

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"token",
		"Print an access token",
		"Prints an access token for the signed-in user, renewing it when needed",
		buildInfo,
		cmdutils.RunAsJob,
		business.TokenMain(os.Stdout),
	)
}
