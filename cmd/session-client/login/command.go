package login

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"login",
		"Sign in",
		"Restores the cached session or opens the identity provider login page in the browser",
		buildInfo,
		cmdutils.RunAsJob,
		business.LoginMain(os.Stdout),
	)
}
